// Package pipeline drives listing candidates from the market source through
// two rounds of human review, banner generation and deployment.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/resolver"
)

// MarketSource pages through upstream listings. An empty next cursor ends
// the listing.
type MarketSource interface {
	Fetch(ctx context.Context, cursor string, limit int) (raws []resolver.RawMarket, next string, err error)
}

// BannerStore keeps generated banners between generation and deployment.
type BannerStore interface {
	Stage(ctx context.Context, marketID string, png []byte) (path, url string, err error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// Pacer spaces out calls to remote services.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Notifier delivers run summaries and failure alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event names.
const (
	EventRunSummary   = "run_summary"
	EventMarketFailed = "market_failed"
)

// Deps are the collaborators of a Runner. Chain, Bus and Notifier may be
// nil: without a chain client deployment stops after publishing the asset.
type Deps struct {
	Source    MarketSource
	Markets   domain.MarketStore
	Approvals domain.ApprovalStore
	Runs      domain.RunStore
	Chat      domain.ChatClient
	Images    domain.ImageGenerator
	Banners   BannerStore
	Assets    domain.AssetRepository
	Chain     domain.ChainClient
	Locks     domain.LockManager
	Pacer     Pacer
	Bus       domain.SignalBus
	Notifier  Notifier
}

// Config tunes a Runner.
type Config struct {
	MaxMarketsPerRun int
	PageSize         int
	MaxPages         int
	ApprovalTimeout  time.Duration
	PlaceholderIcon  string
	// GenericOptions replaces the resolver's generic terms when non-empty.
	GenericOptions  []string
	LockTTL         time.Duration
	AssetPathPrefix string
}

func (c *Config) applyDefaults() {
	if c.MaxMarketsPerRun <= 0 {
		c.MaxMarketsPerRun = 10
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = 30 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.AssetPathPrefix == "" {
		c.AssetPathPrefix = "public/images/markets"
	}
}

// Status writes that fail for reasons other than a lost race are retried
// with a linear backoff.
const (
	writeAttempts   = 3
	writeRetryDelay = 500 * time.Millisecond
)

// Runner executes pipeline runs. At most one run is active at a time.
type Runner struct {
	deps       Deps
	cfg        Config
	rules      resolver.Rules
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	retryDelay time.Duration
	running    atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, cfg Config, logger *slog.Logger) *Runner {
	cfg.applyDefaults()
	rules := resolver.DefaultRules()
	if len(cfg.GenericOptions) > 0 {
		rules = rules.WithGenericTerms(cfg.GenericOptions)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		deps:   deps,
		cfg:    cfg,
		rules:  rules,
		logger: logger.With(slog.String("component", "pipeline")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },

		retryDelay: writeRetryDelay,
	}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// batch accumulates counters and failures of one run. Stages run
// sequentially but the mutex keeps it safe for concurrent helpers.
type batch struct {
	mu       sync.Mutex
	run      domain.PipelineRun
	ingested int
}

func (b *batch) count(f func(c *domain.RunCounts)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(&b.run.RunCounts)
}

func (b *batch) failure(marketID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.run.Failed++
	b.run.Failures = append(b.run.Failures, marketID+": "+reason)
}

// RunOnce executes one run: ingest new listings, collect first-round
// decisions, generate banners, collect final decisions, deploy. It returns
// ErrRunInProgress when another run is active.
func (r *Runner) RunOnce(ctx context.Context) (domain.PipelineRun, error) {
	if !r.running.CompareAndSwap(false, true) {
		return domain.PipelineRun{}, domain.ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx)
}

// Trigger starts a run in the background and returns immediately.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", domain.ErrRunInProgress
	}
	id := r.newID()
	go func() {
		defer r.running.Store(false)
		if _, err := r.runWithID(ctx, id); err != nil {
			r.logger.ErrorContext(ctx, "triggered run failed", slog.String("run_id", id), slog.String("error", err.Error()))
		}
	}()
	return id, nil
}

func (r *Runner) run(ctx context.Context) (domain.PipelineRun, error) {
	return r.runWithID(ctx, r.newID())
}

func (r *Runner) runWithID(ctx context.Context, id string) (domain.PipelineRun, error) {
	b := &batch{run: domain.PipelineRun{ID: id, StartedAt: r.now(), Status: domain.RunRunning}}
	if err := r.deps.Runs.Create(ctx, b.run); err != nil {
		return b.run, fmt.Errorf("pipeline: create run: %w", err)
	}
	logger := r.logger.With(slog.String("run_id", id))
	logger.InfoContext(ctx, "pipeline run started")

	stages := []struct {
		name string
		fn   func(context.Context, *batch) error
	}{
		{"ingest", r.ingest},
		{"initial approvals", func(ctx context.Context, b *batch) error { return r.collectDecisions(ctx, b, domain.StageInitial) }},
		{"banners", r.generateBanners},
		{"final approvals", func(ctx context.Context, b *batch) error { return r.collectDecisions(ctx, b, domain.StageFinal) }},
		{"deploy", r.deploy},
	}

	var errs []error
	for _, st := range stages {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := st.fn(ctx, b); err != nil {
			logger.ErrorContext(ctx, "pipeline stage failed",
				slog.String("stage", st.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	runErr := errors.Join(errs...)

	// The run record and summary are written even when ctx was cancelled.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	b.mu.Lock()
	finished := r.now()
	b.run.FinishedAt = &finished
	b.run.Status = domain.RunSuccess
	if runErr != nil {
		b.run.Status = domain.RunFailed
		b.run.Error = runErr.Error()
	}
	run := b.run
	b.mu.Unlock()

	if err := r.deps.Runs.Finish(finishCtx, run); err != nil {
		logger.ErrorContext(finishCtx, "failed to record run", slog.String("error", err.Error()))
	}
	r.publish(finishCtx, domain.ChannelRuns, run)
	r.notify(finishCtx, EventRunSummary, "Pipeline run finished", SummaryText(run))

	logger.InfoContext(ctx, "pipeline run finished",
		slog.String("status", string(run.Status)),
		slog.Int("processed", run.Processed),
		slog.Int("deployed", run.Deployed),
		slog.Int("failed", run.Failed),
		slog.Duration("elapsed", finished.Sub(run.StartedAt)),
	)
	return run, runErr
}

// RunLoop runs immediately and then on every tick until ctx is cancelled.
// Each run re-reads persisted state, so pending reviews are picked up again.
func (r *Runner) RunLoop(ctx context.Context, interval time.Duration) error {
	r.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("pipeline loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	_, err := r.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRunInProgress):
		r.logger.InfoContext(ctx, "skipping tick, run already in progress")
	default:
		r.logger.ErrorContext(ctx, "pipeline run failed", slog.String("error", err.Error()))
	}
}

// withMarket runs fn while holding the market's lock. A market locked by
// another worker is skipped.
func (r *Runner) withMarket(ctx context.Context, id string, fn func(context.Context) error) error {
	unlock, err := r.deps.Locks.Acquire(ctx, "market:"+id, r.cfg.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		r.logger.DebugContext(ctx, "market locked elsewhere", slog.String("market_id", id))
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock market %s: %w", id, err)
	}
	defer unlock()
	return fn(ctx)
}

func (r *Runner) pace(ctx context.Context) error {
	if r.deps.Pacer == nil {
		return nil
	}
	return r.deps.Pacer.Wait(ctx)
}

// transition moves m to status to and publishes the change.
func (r *Runner) transition(ctx context.Context, b *batch, m *domain.Market, to domain.MarketStatus, reason string) error {
	from := m.Status
	next := *m
	next.Status = to
	next.StatusReason = reason
	if err := r.deps.Markets.Transition(ctx, next, from); err != nil {
		return err
	}
	*m = next
	r.publish(ctx, domain.ChannelStatus, domain.StatusEvent{
		MarketID: m.ID,
		Question: m.Question,
		From:     from,
		To:       to,
		Reason:   reason,
		RunID:    b.run.ID,
		At:       r.now(),
	})
	return nil
}

// transitionRetry is transition with retries for transient store errors.
// Stale, invalid and missing-market errors are returned at once.
func (r *Runner) transitionRetry(ctx context.Context, b *batch, m *domain.Market, to domain.MarketStatus, reason string) error {
	var err error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err = r.transition(ctx, b, m, to, reason)
		if err == nil ||
			errors.Is(err, domain.ErrStaleStatus) ||
			errors.Is(err, domain.ErrInvalidTransition) ||
			errors.Is(err, domain.ErrNotFound) {
			return err
		}
		r.logger.WarnContext(ctx, "status write failed",
			slog.String("market_id", m.ID),
			slog.String("to", string(to)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt == writeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		}
	}
	return err
}

// fail records a per-market failure. It never aborts the run.
func (r *Runner) fail(ctx context.Context, b *batch, m *domain.Market, stage string, cause error) {
	reason := stage + ": " + cause.Error()
	r.logger.ErrorContext(ctx, "market failed",
		slog.String("market_id", m.ID),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	b.failure(m.ID, reason)

	if m.Status.Terminal() {
		return
	}
	if err := r.transition(ctx, b, m, domain.StatusFailed, reason); err != nil {
		r.logger.ErrorContext(ctx, "could not mark market failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	r.notify(ctx, EventMarketFailed, "Market failed", fmt.Sprintf("%s (%s)\n%s", m.Question, m.ID, reason))
}

func (r *Runner) publish(ctx context.Context, channel string, v any) {
	if r.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.WarnContext(ctx, "encode event", slog.String("error", err.Error()))
		return
	}
	if err := r.deps.Bus.Publish(ctx, channel, payload); err != nil {
		r.logger.WarnContext(ctx, "publish event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) notify(ctx context.Context, event, title, message string) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
