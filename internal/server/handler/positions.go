package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/service"
)

// PositionLedger defines the ledger methods the position handler requires.
type PositionLedger interface {
	Open(ctx context.Context, req service.OpenPositionRequest) (domain.Position, error)
	Get(ctx context.Context, id string) (domain.Position, error)
	ListOpen(ctx context.Context, accountID string) ([]domain.Position, error)
	ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error)
	UpdateStops(ctx context.Context, id string, stopLoss, takeProfit *decimal.Decimal) (domain.Position, error)
}

// PositionCloser closes a position and announces the close.
type PositionCloser interface {
	Close(ctx context.Context, id string, exitPrice decimal.Decimal, reason domain.CloseReason) (domain.Position, bool, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	ledger PositionLedger
	closer PositionCloser
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(ledger PositionLedger, closer PositionCloser, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		closer: closer,
		logger: logHandler(logger, "positions"),
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// OpenPosition records a filled order as a new position.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req service.OpenPositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	pos, err := h.ledger.Open(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

// ListPositions returns an account's open positions, or its full history
// with status=all.
// GET /api/positions?account=...&status=all&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	account := q.Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}

	var (
		positions []domain.Position
		err       error
	)
	if q.Get("status") == "all" {
		positions, err = h.ledger.ListHistory(r.Context(), account, parseListOpts(r))
	} else {
		positions, err = h.ledger.ListOpen(r.Context(), account)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: nonNil(positions)})
}

// GetPosition returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.ledger.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type updateStopsRequest struct {
	StopLoss   *decimal.Decimal `json:"stop_loss"`
	TakeProfit *decimal.Decimal `json:"take_profit"`
}

// UpdateStops replaces the thresholds of an open position. An omitted or
// null field clears that threshold.
// PATCH /api/positions/{id}
func (h *PositionHandler) UpdateStops(w http.ResponseWriter, r *http.Request) {
	var req updateStopsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update stops", err)
		return
	}
	pos, err := h.ledger.UpdateStops(r.Context(), pathParam(r, "id"), req.StopLoss, req.TakeProfit)
	if err != nil {
		writeServiceError(w, r, h.logger, "update stops", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type closePositionRequest struct {
	ExitPrice decimal.Decimal `json:"exit_price"`
}

type closePositionResponse struct {
	Position domain.Position `json:"position"`
	Closed   bool            `json:"closed"`
}

// ClosePosition closes a position manually. Closing a position that is
// already closed returns it with closed=false.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "close position", err)
		return
	}
	pos, closed, err := h.closer.Close(r.Context(), pathParam(r, "id"), req.ExitPrice, domain.CloseReasonManual)
	if err != nil {
		writeServiceError(w, r, h.logger, "close position", err)
		return
	}
	writeJSON(w, http.StatusOK, closePositionResponse{Position: pos, Closed: closed})
}
