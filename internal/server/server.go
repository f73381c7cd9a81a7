// Package server exposes the signalhub HTTP + WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/server/handler"
	"github.com/alanyoungcy/signalhub/internal/server/middleware"
	"github.com/alanyoungcy/signalhub/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// PollRateLimit caps polls per connection per PollRateWindow. Zero or a
	// nil limiter disables it.
	PollRateLimit  int
	PollRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// A nil handler leaves its routes unregistered.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Positions     *handler.PositionHandler
	Prices        *handler.PriceHandler
	Signals       *handler.SignalHandler
	Transmissions *handler.TransmissionHandler
	Clients       *handler.ClientHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           Routes(cfg, handlers, hub, limiter, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the full handler tree. It is exported for tests.
func Routes(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h := handlers.Health; h != nil {
		mux.HandleFunc("GET /api/health", h.HealthCheck)
	}
	if h := handlers.Status; h != nil {
		mux.HandleFunc("GET /api/status", h.GetStatus)
	}

	if h := handlers.Positions; h != nil {
		mux.HandleFunc("POST /api/positions", h.OpenPosition)
		mux.HandleFunc("GET /api/positions", h.ListPositions)
		mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
		mux.HandleFunc("PATCH /api/positions/{id}", h.UpdateStops)
		mux.HandleFunc("POST /api/positions/{id}/close", h.ClosePosition)
	}
	if h := handlers.Prices; h != nil {
		mux.HandleFunc("POST /api/prices", h.PushPrice)
	}

	if h := handlers.Signals; h != nil {
		mux.HandleFunc("POST /api/signals", h.SubmitSignal)
		mux.HandleFunc("GET /api/signals", h.ListSignals)
		mux.HandleFunc("GET /api/signals/{id}", h.GetSignal)
		mux.HandleFunc("PATCH /api/signals/{id}", h.UpdateSignal)
	}
	if h := handlers.Transmissions; h != nil {
		mux.HandleFunc("GET /api/transmissions", h.ListTransmissions)
	}

	if h := handlers.Clients; h != nil {
		pollLimit := middleware.RateLimit(limiter, cfg.PollRateLimit, cfg.PollRateWindow,
			middleware.ByPathValue("id"), logger)

		mux.HandleFunc("POST /api/clients/connect", h.Connect)
		mux.HandleFunc("GET /api/clients", h.ListClients)
		mux.HandleFunc("POST /api/clients/{id}/heartbeat", h.Heartbeat)
		mux.Handle("GET /api/clients/{id}/poll", pollLimit(http.HandlerFunc(h.Poll)))
		mux.HandleFunc("POST /api/clients/{id}/disconnect", h.Disconnect)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve accepts connections on l until the server is shut down.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("server starting", slog.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
