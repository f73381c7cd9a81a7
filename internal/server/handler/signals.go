package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/service"
)

// SignalStore defines the signal methods the handler requires.
type SignalStore interface {
	Submit(ctx context.Context, req service.SubmitSignalRequest) (service.SubmitResult, error)
	Get(ctx context.Context, id string) (domain.TradingSignal, error)
	ListRecent(ctx context.Context, limit int) ([]domain.TradingSignal, error)
	Transition(ctx context.Context, id string, to domain.SignalStatus) (domain.TradingSignal, error)
}

// SignalHandler serves signal endpoints.
type SignalHandler struct {
	signals SignalStore
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(signals SignalStore, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signals: signals, logger: logHandler(logger, "signals")}
}

type listSignalsResponse struct {
	Signals []domain.TradingSignal `json:"signals"`
}

// SubmitSignal stores a candidate and fans it out. With "wait": true the
// response carries the per-channel outcomes.
// POST /api/signals
func (h *SignalHandler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "submit signal", err)
		return
	}
	res, err := h.signals.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "submit signal", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListSignals returns the newest signals.
// GET /api/signals?limit=50
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	list, err := h.signals.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "list signals", err)
		return
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: nonNil(list)})
}

// GetSignal returns one signal.
// GET /api/signals/{id}
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := h.signals.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get signal", err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

type transitionRequest struct {
	Status domain.SignalStatus `json:"status"`
}

// UpdateSignal moves a pending signal to a terminal status.
// PATCH /api/signals/{id}
func (h *SignalHandler) UpdateSignal(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "update signal", err)
		return
	}
	sig, err := h.signals.Transition(r.Context(), pathParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, "update signal", err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}
