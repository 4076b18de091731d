package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// maxPendingPerStage bounds how many pending markets one run inspects.
const maxPendingPerStage = 500

// Decide turns the human reactions on a review message into a decision.
// A reject reaction wins over an approve reaction. With neither present the
// review times out once timeout has elapsed since createdAt.
func Decide(reactions map[string][]string, createdAt, now time.Time, timeout time.Duration) domain.ApprovalStatus {
	switch {
	case len(reactions[domain.ReactionReject]) > 0:
		return domain.ApprovalRejected
	case len(reactions[domain.ReactionApprove]) > 0:
		return domain.ApprovalApproved
	case now.Sub(createdAt) >= timeout:
		return domain.ApprovalTimeout
	default:
		return domain.ApprovalPending
	}
}

type stageStatuses struct {
	pending  domain.MarketStatus
	approved domain.MarketStatus
	rejected domain.MarketStatus
	timeout  domain.MarketStatus
}

func statusesFor(stage domain.ApprovalStage) stageStatuses {
	if stage == domain.StageFinal {
		return stageStatuses{
			pending:  domain.StatusPendingFinal,
			approved: domain.StatusFinalApproved,
			rejected: domain.StatusFinalRejected,
			timeout:  domain.StatusFinalTimeout,
		}
	}
	return stageStatuses{
		pending:  domain.StatusPendingInitial,
		approved: domain.StatusApproved,
		rejected: domain.StatusRejected,
		timeout:  domain.StatusTimeout,
	}
}

// collectDecisions resolves every market waiting on a review of stage.
func (r *Runner) collectDecisions(ctx context.Context, b *batch, stage domain.ApprovalStage) error {
	st := statusesFor(stage)
	markets, err := r.deps.Markets.List(ctx, domain.MarketFilter{
		Status:   st.pending,
		ListOpts: domain.ListOpts{Limit: maxPendingPerStage},
	})
	if err != nil {
		return err
	}

	for _, m := range markets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := r.withMarket(ctx, m.ID, func(ctx context.Context) error {
			return r.decideOne(ctx, b, m.ID, stage, st)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) decideOne(ctx context.Context, b *batch, id string, stage domain.ApprovalStage, st stageStatuses) error {
	// Reload under the lock; another worker may have moved it on.
	m, err := r.deps.Markets.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != st.pending {
		return nil
	}

	ev, err := r.deps.Approvals.Pending(ctx, m.ID, stage)
	if errors.Is(err, domain.ErrNotFound) {
		r.fail(ctx, b, &m, string(stage)+" review", errors.New("no pending approval event"))
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.pace(ctx); err != nil {
		return err
	}
	reactions, err := r.deps.Chat.Reactions(ctx, ev.MessageID)
	if errors.Is(err, domain.ErrNotFound) {
		r.fail(ctx, b, &m, string(stage)+" review", fmt.Errorf("review message %s is gone", ev.MessageID))
		return nil
	}
	if err != nil {
		// Transient; the next run asks again.
		r.logger.WarnContext(ctx, "read reactions failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	now := r.now()
	decision := Decide(reactions, ev.CreatedAt, now, r.cfg.ApprovalTimeout)
	if decision == domain.ApprovalPending {
		return nil
	}

	var (
		to     domain.MarketStatus
		reason string
	)
	switch decision {
	case domain.ApprovalApproved:
		to, reason = st.approved, "approved by "+strings.Join(reactions[domain.ReactionApprove], ", ")
	case domain.ApprovalRejected:
		to, reason = st.rejected, "rejected by "+strings.Join(reactions[domain.ReactionReject], ", ")
	default:
		to, reason = st.timeout, fmt.Sprintf("no decision within %s", r.cfg.ApprovalTimeout)
	}

	// The market moves first so a lost race leaves the event pending.
	if err := r.transition(ctx, b, &m, to, reason); err != nil {
		if errors.Is(err, domain.ErrStaleStatus) {
			return nil
		}
		return err
	}
	ev.Status = decision
	ev.Reason = reason
	ev.ResolvedAt = &now
	if err := r.deps.Approvals.Resolve(ctx, ev); err != nil {
		r.logger.WarnContext(ctx, "resolve approval event failed",
			slog.String("market_id", m.ID),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}

	b.count(func(c *domain.RunCounts) {
		switch decision {
		case domain.ApprovalApproved:
			c.Approved++
		case domain.ApprovalRejected:
			c.Rejected++
		default:
			c.TimedOut++
		}
	})
	r.logger.InfoContext(ctx, "review decided",
		slog.String("market_id", m.ID),
		slog.String("stage", string(stage)),
		slog.String("decision", string(decision)),
	)
	return nil
}
