package domain

import (
	"context"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketFilter narrows MarketStore.List.
type MarketFilter struct {
	Status MarketStatus
	ListOpts
}

// MarketStore persists listing candidates.
type MarketStore interface {
	// Insert stores a new market. It returns ErrAlreadyExists when the id
	// was seen before.
	Insert(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f MarketFilter) ([]Market, error)
	// Transition writes m and moves it from status from to m.Status. It
	// returns ErrStaleStatus when the stored status is no longer from.
	Transition(ctx context.Context, m Market, from MarketStatus) error
	// Update writes the mutable fields of m without changing its status. It
	// returns ErrStaleStatus when the stored status is no longer m.Status.
	Update(ctx context.Context, m Market) error
	CountByStatus(ctx context.Context) (map[MarketStatus]int64, error)
}

// ApprovalStore persists approval events.
type ApprovalStore interface {
	Create(ctx context.Context, ev ApprovalEvent) error
	// Pending returns the newest pending event for the market and stage.
	Pending(ctx context.Context, marketID string, stage ApprovalStage) (ApprovalEvent, error)
	Resolve(ctx context.Context, ev ApprovalEvent) error
	ListByMarket(ctx context.Context, marketID string) ([]ApprovalEvent, error)
}

// RunStore persists pipeline run records.
type RunStore interface {
	Create(ctx context.Context, run PipelineRun) error
	Finish(ctx context.Context, run PipelineRun) error
	Latest(ctx context.Context) (PipelineRun, error)
	List(ctx context.Context, opts ListOpts) ([]PipelineRun, error)
}
