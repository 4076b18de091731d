package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/listingbot/internal/server"
	"github.com/alanyoungcy/listingbot/internal/server/handler"
	"github.com/alanyoungcy/listingbot/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP drain.
const shutdownTimeout = 5 * time.Second

// OnceMode executes a single pipeline run and returns. A run with a failed
// stage is an error so schedulers see a non-zero exit; per-market failures
// are not.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")
	if _, err := deps.Runner.RunOnce(ctx); err != nil {
		return fmt.Errorf("app: pipeline run: %w", err)
	}
	return nil
}

// LoopMode runs the pipeline immediately and then on every interval until
// the context is cancelled.
func (a *App) LoopMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting loop mode",
		slog.Duration("interval", a.cfg.Pipeline.Interval.Duration),
	)
	return deps.Runner.RunLoop(ctx, a.cfg.Pipeline.Interval.Duration)
}

// ServerMode serves the status API and websocket feed without running the
// pipeline. Status comes from the shared database and bus, so it can sit
// next to loop-mode workers.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the pipeline loop and the API server in one process. The
// trigger endpoint starts runs on the same runner.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Runner.RunLoop(ctx, a.cfg.Pipeline.Interval.Duration)
	})
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the API server and websocket hub to g. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Interfaces stay nil when no runner is wired.
	var (
		state   handler.RunState
		trigger handler.Triggerer
	)
	if deps.Runner != nil {
		state = deps.Runner
		trigger = deps.Runner
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, deps.Runs, deps.Markets, state, a.logger),
		Runs:     handler.NewRunHandler(deps.Runs, a.logger),
		Markets:  handler.NewMarketHandler(deps.Markets, deps.Approvals, a.logger),
		Pipeline: handler.NewPipelineHandler(trigger, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.Limiter, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server api_key is empty, API is unauthenticated")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
