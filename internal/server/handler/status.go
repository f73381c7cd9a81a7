package handler

import (
	"net/http"
	"time"
)

// ChannelLister reports the registered delivery channels.
type ChannelLister interface {
	Channels() []string
}

// ClientCounter reports how many live dashboard clients are connected.
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler serves the runtime mode and enabled channels for the dashboard.
type StatusHandler struct {
	mode      string
	channels  ChannelLister
	live      ClientCounter
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, channels ChannelLister, live ClientCounter, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, channels: channels, live: live, startedAt: startedAt}
}

// GetStatus responds with the current mode, channels, websocket client count
// and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"channels":       nonNil(h.channels.Channels()),
		"live_clients":   h.live.ClientCount(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
