package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// TransmissionReader is the read side of the transmission log.
type TransmissionReader interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.SignalTransmission, error)
	ListBySignal(ctx context.Context, signalID string) ([]domain.SignalTransmission, error)
}

// TransmissionHandler serves the delivery audit trail.
type TransmissionHandler struct {
	log    TransmissionReader
	logger *slog.Logger
}

// NewTransmissionHandler creates a TransmissionHandler.
func NewTransmissionHandler(log TransmissionReader, logger *slog.Logger) *TransmissionHandler {
	return &TransmissionHandler{log: log, logger: logHandler(logger, "transmissions")}
}

type listTransmissionsResponse struct {
	Transmissions []domain.SignalTransmission `json:"transmissions"`
}

// ListTransmissions returns recent attempts, or every attempt of one signal
// in the order they were made.
// GET /api/transmissions?signal_id=...&limit=50&offset=0
func (h *TransmissionHandler) ListTransmissions(w http.ResponseWriter, r *http.Request) {
	var (
		rows []domain.SignalTransmission
		err  error
	)
	if id := r.URL.Query().Get("signal_id"); id != "" {
		rows, err = h.log.ListBySignal(r.Context(), id)
	} else {
		rows, err = h.log.ListRecent(r.Context(), parseListOpts(r))
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list transmissions", err)
		return
	}
	writeJSON(w, http.StatusOK, listTransmissionsResponse{Transmissions: nonNil(rows)})
}
