package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// MarketHandler serves listing candidates and their review history.
type MarketHandler struct {
	markets   domain.MarketStore
	approvals domain.ApprovalStore
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets domain.MarketStore, approvals domain.ApprovalStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, approvals: approvals, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Status  string          `json:"status,omitempty"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets, optionally filtered by status.
// GET /api/markets?status=pending_initial&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}

	markets, err := h.markets.List(r.Context(), domain.MarketFilter{Status: status, ListOpts: opts})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Status:  string(status),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// ListApprovals returns the review history of one market.
// GET /api/markets/{id}/approvals
func (h *MarketHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if _, err := h.markets.Get(r.Context(), id); err != nil {
		h.writeLookupError(w, r, id, err)
		return
	}
	events, err := h.approvals.ListByMarket(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list approvals failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list approvals")
		return
	}
	if events == nil {
		events = []domain.ApprovalEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "approvals": events})
}

func (h *MarketHandler) writeLookupError(w http.ResponseWriter, r *http.Request, id string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "get market failed",
		slog.String("market_id", id),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get market")
}
