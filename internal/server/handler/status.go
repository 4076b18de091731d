package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// RunState reports whether a pipeline run is active.
type RunState interface {
	Running() bool
}

// StatusHandler serves the dashboard summary: mode, the latest run and
// market counts per status.
type StatusHandler struct {
	mode    string
	runs    domain.RunStore
	markets domain.MarketStore
	state   RunState
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler. state may be nil when no
// pipeline runs in this process.
func NewStatusHandler(mode string, runs domain.RunStore, markets domain.MarketStore, state RunState, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, runs: runs, markets: markets, state: state, logger: logger}
}

type statusResponse struct {
	Mode      string                        `json:"mode"`
	Running   bool                          `json:"running"`
	LatestRun *domain.PipelineRun           `json:"latest_run"`
	Markets   map[domain.MarketStatus]int64 `json:"markets"`
}

// GetStatus responds with the latest run and market counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Mode: h.mode}
	if h.state != nil {
		resp.Running = h.state.Running()
	}

	run, err := h.runs.Latest(r.Context())
	switch {
	case err == nil:
		resp.LatestRun = &run
	case errors.Is(err, domain.ErrNotFound):
	default:
		h.logger.ErrorContext(r.Context(), "latest run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}

	counts, err := h.markets.CountByStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count markets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}
	resp.Markets = counts

	writeJSON(w, http.StatusOK, resp)
}
