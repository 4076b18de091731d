package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// Triggerer starts a pipeline run in the background.
type Triggerer interface {
	Trigger(ctx context.Context) (runID string, err error)
}

// PipelineHandler serves the manual trigger endpoint.
type PipelineHandler struct {
	runner Triggerer
	logger *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. runner is nil when the
// process does not run the pipeline.
func NewPipelineHandler(runner Triggerer, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// TriggerPipeline starts one run and answers 202 with its id, or 409 when a
// run is already active.
// POST /api/pipeline/trigger
func (h *PipelineHandler) TriggerPipeline(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline is not enabled in this mode")
		return
	}

	// The run outlives the request.
	id, err := h.runner.Trigger(context.WithoutCancel(r.Context()))
	if errors.Is(err, domain.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pipeline trigger failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to trigger pipeline")
		return
	}

	h.logger.InfoContext(r.Context(), "pipeline run triggered", slog.String("run_id", id))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"run_id":       id,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
