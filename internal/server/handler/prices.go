package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// TickApplier evaluates open positions of a symbol against a pushed price.
type TickApplier interface {
	ApplyTick(ctx context.Context, symbol string, price decimal.Decimal) ([]domain.Position, error)
}

// PriceHandler accepts pushed price ticks.
type PriceHandler struct {
	cache   domain.PriceCache
	monitor TickApplier
	logger  *slog.Logger
}

// NewPriceHandler creates a PriceHandler. monitor may be nil, in which case
// ticks only update the cache and the next monitor pass picks them up.
func NewPriceHandler(cache domain.PriceCache, monitor TickApplier, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{cache: cache, monitor: monitor, logger: logHandler(logger, "prices")}
}

type priceTickRequest struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     *time.Time      `json:"at,omitempty"`
}

type priceTickResponse struct {
	Symbol    string            `json:"symbol"`
	Price     decimal.Decimal   `json:"price"`
	Positions []domain.Position `json:"positions"`
}

// PushPrice stores a price tick and evaluates the symbol's open positions.
// POST /api/prices
func (h *PriceHandler) PushPrice(w http.ResponseWriter, r *http.Request) {
	var req priceTickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "push price", err)
		return
	}
	if req.Symbol == "" {
		writeServiceError(w, r, h.logger, "push price", domain.NewValidationError("symbol", "is required"))
		return
	}
	if !req.Price.IsPositive() {
		writeServiceError(w, r, h.logger, "push price", domain.NewValidationError("price", "must be positive"))
		return
	}
	at := time.Now().UTC()
	if req.At != nil {
		at = req.At.UTC()
	}

	if err := h.cache.SetPrice(r.Context(), req.Symbol, req.Price, at); err != nil {
		writeServiceError(w, r, h.logger, "push price", err)
		return
	}

	resp := priceTickResponse{Symbol: req.Symbol, Price: req.Price, Positions: []domain.Position{}}
	if h.monitor != nil {
		positions, err := h.monitor.ApplyTick(r.Context(), req.Symbol, req.Price)
		if err != nil {
			writeServiceError(w, r, h.logger, "push price", err)
			return
		}
		resp.Positions = nonNil(positions)
	}
	writeJSON(w, http.StatusAccepted, resp)
}
