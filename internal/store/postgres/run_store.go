package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

const runCols = `id, started_at, finished_at, status, processed, approved, rejected,
	timed_out, banners, deployed, failed, failures, error`

// Create inserts a run in the running state.
func (s *RunStore) Create(ctx context.Context, run domain.PipelineRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, started_at, status) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// Finish stores the final counters and status of a run.
func (s *RunStore) Finish(ctx context.Context, run domain.PipelineRun) error {
	failures := run.Failures
	if failures == nil {
		failures = []string{}
	}
	encoded, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("postgres: encode run failures: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET
			finished_at = $2, status = $3,
			processed = $4, approved = $5, rejected = $6, timed_out = $7,
			banners = $8, deployed = $9, failed = $10, failures = $11, error = $12
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status),
		run.Processed, run.Approved, run.Rejected, run.TimedOut,
		run.Banners, run.Deployed, run.Failed, encoded, run.Error)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (domain.PipelineRun, error) {
	var (
		run      domain.PipelineRun
		status   string
		failures []byte
	)
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &status,
		&run.Processed, &run.Approved, &run.Rejected, &run.TimedOut,
		&run.Banners, &run.Deployed, &run.Failed, &failures, &run.Error)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal(failures, &run.Failures); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("decode failures: %w", err)
	}
	return run, nil
}

// Latest returns the most recently started run.
func (s *RunStore) Latest(ctx context.Context) (domain.PipelineRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM pipeline_runs ORDER BY started_at DESC LIMIT 1`))
	if err != nil {
		if notFound(err) {
			return domain.PipelineRun{}, domain.ErrNotFound
		}
		return domain.PipelineRun{}, fmt.Errorf("postgres: latest run: %w", err)
	}
	return run, nil
}

// List returns runs, newest first.
func (s *RunStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.PipelineRun, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runCols+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

var _ domain.RunStore = (*RunStore)(nil)
