// Package server exposes the read-only status API, the manual pipeline
// trigger and the live websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alanyoungcy/listingbot/internal/domain"
	"github.com/alanyoungcy/listingbot/internal/server/handler"
	"github.com/alanyoungcy/listingbot/internal/server/middleware"
	"github.com/alanyoungcy/listingbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey protects every route except the health check. Empty disables
	// authentication.
	APIKey string
	// RateLimit is requests per minute per client; zero disables limiting.
	RateLimit int
}

// Handlers aggregates the route handlers.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Runs     *handler.RunHandler
	Markets  *handler.MarketHandler
	Pipeline *handler.PipelineHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter builds the route tree. hub and limiter may be nil.
func NewRouter(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	if limiter != nil && cfg.RateLimit > 0 {
		r.Use(middleware.RateLimit(limiter, cfg.RateLimit, time.Minute))
	}

	r.Get("/api/health", h.Health.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))

		r.Get("/api/status", h.Status.GetStatus)
		r.Get("/api/runs", h.Runs.ListRuns)
		r.Route("/api/markets", func(r chi.Router) {
			r.Get("/", h.Markets.ListMarkets)
			r.Get("/{id}", h.Markets.GetMarket)
			r.Get("/{id}/approvals", h.Markets.ListApprovals)
		})
		r.Post("/api/pipeline/trigger", h.Pipeline.TriggerPipeline)

		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
	})
	return r
}

// NewServer creates a Server listening on cfg.Port.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(cfg, handlers, hub, limiter, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
