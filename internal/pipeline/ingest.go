package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/resolver"
)

// ingest pages the source until MaxMarketsPerRun unseen markets have been
// stored and posted for initial review.
func (r *Runner) ingest(ctx context.Context, b *batch) error {
	cursor := ""
	for page := 0; page < r.cfg.MaxPages && b.ingested < r.cfg.MaxMarketsPerRun; page++ {
		if err := r.pace(ctx); err != nil {
			return err
		}
		raws, next, err := r.deps.Source.Fetch(ctx, cursor, r.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		r.logger.DebugContext(ctx, "fetched listing page",
			slog.Int("page", page),
			slog.Int("markets", len(raws)),
		)

		for _, raw := range raws {
			if b.ingested >= r.cfg.MaxMarketsPerRun {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := r.ingestOne(ctx, b, raw); err != nil {
				return err
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return nil
}

// ingestOne stores raw when it is unseen and posts it for review. Only
// store errors are returned; remote failures mark the market failed.
func (r *Runner) ingestOne(ctx context.Context, b *batch, raw resolver.RawMarket) error {
	if raw.ID == "" {
		return nil
	}
	seen, err := r.deps.Markets.Exists(ctx, raw.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	return r.withMarket(ctx, raw.ID, func(ctx context.Context) error {
		m := r.newMarket(raw)
		if err := r.deps.Markets.Insert(ctx, m); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return nil
			}
			return err
		}
		b.ingested++
		b.count(func(c *domain.RunCounts) { c.Processed++ })

		if err := r.requestReview(ctx, b, &m, domain.StageInitial, InitialMessage(m), domain.StatusPendingInitial); err != nil {
			r.fail(ctx, b, &m, "initial review", err)
		}
		return nil
	})
}

// newMarket resolves raw into a market in status new.
func (r *Runner) newMarket(raw resolver.RawMarket) domain.Market {
	norm := r.rules.Resolve(raw, r.cfg.PlaceholderIcon)
	now := r.now()

	m := domain.Market{
		ID:          raw.ID,
		Question:    raw.Question,
		Category:    raw.Category,
		Kind:        domain.KindBinary,
		Options:     norm.Options,
		BannerImage: norm.BannerImage,
		BannerIcon:  norm.BannerIcon,
		Status:      domain.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if norm.Kind() == resolver.KindMultiple {
		m.Kind = domain.KindMultiple
	}
	if exp, ok := raw.ExpiresAt(); ok {
		m.ExpiresAt = &exp
	}
	if len(raw.Events) > 0 {
		m.EventID = raw.Events[0].ID
		m.EventTitle = raw.Events[0].Title
	}
	m.OptionImages = make([]domain.OptionImage, 0, len(norm.OptionImages))
	for _, oi := range norm.OptionImages {
		m.OptionImages = append(m.OptionImages, domain.OptionImage{Label: oi.Label, URL: oi.URL})
	}
	return m
}

// requestReview posts msg, seeds the approve and reject reactions, records
// a pending approval event and moves m to status to.
func (r *Runner) requestReview(ctx context.Context, b *batch, m *domain.Market, stage domain.ApprovalStage, msg domain.ChatMessage, to domain.MarketStatus) error {
	if err := r.pace(ctx); err != nil {
		return err
	}
	messageID, err := r.deps.Chat.Post(ctx, msg)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	for _, name := range []string{domain.ReactionApprove, domain.ReactionReject} {
		if err := r.pace(ctx); err != nil {
			return err
		}
		if err := r.deps.Chat.React(ctx, messageID, name); err != nil {
			return fmt.Errorf("add reaction %s: %w", name, err)
		}
	}

	ev := domain.ApprovalEvent{
		ID:        uuid.New().String(),
		MarketID:  m.ID,
		Stage:     stage,
		Status:    domain.ApprovalPending,
		MessageID: messageID,
		CreatedAt: r.now(),
	}
	if err := r.deps.Approvals.Create(ctx, ev); err != nil {
		return fmt.Errorf("record approval event: %w", err)
	}

	m.MessageID = messageID
	return r.transition(ctx, b, m, to, "")
}
