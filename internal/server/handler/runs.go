package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// RunHandler serves pipeline run history.
type RunHandler struct {
	runs   domain.RunStore
	logger *slog.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(runs domain.RunStore, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger}
}

// ListRuns returns runs, newest first.
// GET /api/runs?limit=50&offset=0
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	runs, err := h.runs.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []domain.PipelineRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
