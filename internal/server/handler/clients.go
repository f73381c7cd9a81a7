package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/service"
)

// ClientRegistry defines the polling-client methods the handler requires.
type ClientRegistry interface {
	Connect(ctx context.Context, clientName string) (domain.ClientConnection, error)
	Heartbeat(ctx context.Context, id string, status domain.ConnectionStatus) (domain.ClientConnection, error)
	Poll(ctx context.Context, id string) (service.PollResult, error)
	Disconnect(ctx context.Context, id string) (domain.ClientConnection, error)
	List(ctx context.Context) ([]domain.ClientConnection, error)
}

// ClientHandler serves the polling interface for automated trading clients.
type ClientHandler struct {
	registry ClientRegistry
	logger   *slog.Logger
}

// NewClientHandler creates a ClientHandler.
func NewClientHandler(registry ClientRegistry, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{registry: registry, logger: logHandler(logger, "clients")}
}

type connectRequest struct {
	ClientName string `json:"client_name"`
}

// Connect registers a client session.
// POST /api/clients/connect
func (h *ClientHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "connect client", err)
		return
	}
	conn, err := h.registry.Connect(r.Context(), strings.TrimSpace(req.ClientName))
	if err != nil {
		writeServiceError(w, r, h.logger, "connect client", err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

type heartbeatRequest struct {
	Status domain.ConnectionStatus `json:"status"`
}

// Heartbeat refreshes a session. The body is optional.
// POST /api/clients/{id}/heartbeat
func (h *ClientHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "heartbeat", err)
		return
	}
	conn, err := h.registry.Heartbeat(r.Context(), pathParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, h.logger, "heartbeat", err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// Poll hands the client every signal queued for it since the last poll.
// GET /api/clients/{id}/poll
func (h *ClientHandler) Poll(w http.ResponseWriter, r *http.Request) {
	res, err := h.registry.Poll(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "poll", err)
		return
	}
	res.Signals = nonNil(res.Signals)
	writeJSON(w, http.StatusOK, res)
}

// Disconnect ends a session.
// POST /api/clients/{id}/disconnect
func (h *ClientHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.registry.Disconnect(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "disconnect", err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

type listClientsResponse struct {
	Clients []domain.ClientConnection `json:"clients"`
}

// ListClients returns every known session.
// GET /api/clients
func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list clients", err)
		return
	}
	writeJSON(w, http.StatusOK, listClientsResponse{Clients: nonNil(list)})
}
