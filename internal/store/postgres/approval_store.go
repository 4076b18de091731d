package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// ApprovalStore implements domain.ApprovalStore using PostgreSQL.
type ApprovalStore struct {
	pool *pgxpool.Pool
}

// NewApprovalStore creates a new ApprovalStore.
func NewApprovalStore(pool *pgxpool.Pool) *ApprovalStore {
	return &ApprovalStore{pool: pool}
}

const approvalCols = `id, market_id, stage, status, message_id, reason, created_at, resolved_at`

// Create inserts a new approval event.
func (s *ApprovalStore) Create(ctx context.Context, ev domain.ApprovalEvent) error {
	const query = `
		INSERT INTO approval_events (id, market_id, stage, status, message_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.MarketID, string(ev.Stage), string(ev.Status), ev.MessageID, ev.Reason, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create approval event for %s: %w", ev.MarketID, err)
	}
	return nil
}

func scanApproval(row pgx.Row) (domain.ApprovalEvent, error) {
	var (
		ev            domain.ApprovalEvent
		stage, status string
	)
	if err := row.Scan(&ev.ID, &ev.MarketID, &stage, &status, &ev.MessageID, &ev.Reason, &ev.CreatedAt, &ev.ResolvedAt); err != nil {
		return domain.ApprovalEvent{}, err
	}
	ev.Stage = domain.ApprovalStage(stage)
	ev.Status = domain.ApprovalStatus(status)
	return ev, nil
}

// Pending returns the newest pending event for a market and stage.
func (s *ApprovalStore) Pending(ctx context.Context, marketID string, stage domain.ApprovalStage) (domain.ApprovalEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+approvalCols+` FROM approval_events
		WHERE market_id = $1 AND stage = $2 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, marketID, string(stage))
	ev, err := scanApproval(row)
	if err != nil {
		if notFound(err) {
			return domain.ApprovalEvent{}, domain.ErrNotFound
		}
		return domain.ApprovalEvent{}, fmt.Errorf("postgres: pending approval %s/%s: %w", marketID, stage, err)
	}
	return ev, nil
}

// Resolve records the decision on a pending event. A second resolution of
// the same event returns ErrStaleStatus.
func (s *ApprovalStore) Resolve(ctx context.Context, ev domain.ApprovalEvent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_events SET status = $2, reason = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'`,
		ev.ID, string(ev.Status), ev.Reason, ev.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: resolve approval %s: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: resolve approval %s: %w", ev.ID, domain.ErrStaleStatus)
	}
	return nil
}

// ListByMarket returns every approval event of a market, oldest first.
func (s *ApprovalStore) ListByMarket(ctx context.Context, marketID string) ([]domain.ApprovalEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+approvalCols+` FROM approval_events
		WHERE market_id = $1 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list approvals %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.ApprovalEvent
	for rows.Next() {
		ev, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan approval: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ domain.ApprovalStore = (*ApprovalStore)(nil)
