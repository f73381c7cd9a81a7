package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
	"github.com/alanyoungcy/signalhub/internal/notify"
	"github.com/alanyoungcy/signalhub/internal/price"
	"github.com/alanyoungcy/signalhub/internal/server/handler"
	"github.com/alanyoungcy/signalhub/internal/server/ws"
	"github.com/alanyoungcy/signalhub/internal/service"
	"github.com/alanyoungcy/signalhub/internal/store/memory"
)

const testAPIKey = "test-key"

type countingLimiter struct {
	mu    sync.Mutex
	limit int
	seen  map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type testEnv struct {
	srv        *httptest.Server
	dispatcher *notify.Dispatcher
}

func newTestEnv(t *testing.T, limiter domain.RateLimiter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	bus := memory.NewSignalBus()
	broadcaster := events.NewBroadcaster(bus, logger)
	transmissions := memory.NewTransmissionStore()
	signalStore := memory.NewSignalStore()
	prices := memory.NewPriceCache()

	registry := service.NewClientRegistry(memory.NewConnectionStore(), memory.NewPendingQueue(), signalStore, time.Minute, logger)
	dispatcher := notify.NewDispatcher(transmissions, time.Second, logger)
	dispatcher.Register(notify.NewLiveAdapter(broadcaster))
	dispatcher.Register(notify.NewPollingAdapter(registry))

	positions := service.NewPositionService(memory.NewPositionStore(), broadcaster, memory.NewAuditStore(), logger)
	signals := service.NewSignalService(signalStore, broadcaster, dispatcher, registry, logger)
	monitor := service.NewThresholdMonitor(positions, signals, price.NewCache(prices, 0), dispatcher, logger)

	hub := ws.NewHub(bus, logger)
	go hub.Run(ctx)

	handlers := Handlers{
		Health:        handler.NewHealthHandler(nil, logger),
		Status:        handler.NewStatusHandler("server", dispatcher, hub, time.Now()),
		Positions:     handler.NewPositionHandler(positions, monitor, logger),
		Prices:        handler.NewPriceHandler(prices, monitor, logger),
		Signals:       handler.NewSignalHandler(signals, logger),
		Transmissions: handler.NewTransmissionHandler(transmissions, logger),
		Clients:       handler.NewClientHandler(registry, logger),
	}
	cfg := Config{APIKey: testAPIKey, PollRateLimit: 1, PollRateWindow: time.Minute}
	srv := httptest.NewServer(Routes(cfg, handlers, hub, limiter, logger))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		dispatcher.Wait()
	})
	return &testEnv{srv: srv, dispatcher: dispatcher}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/signals")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/signals", nil, nil))
}

func TestPositionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	var pos domain.Position
	code := env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"account_id":  "acct-1",
		"symbol":      "AAPL",
		"side":        "LONG",
		"size":        "10",
		"entry_price": "100",
		"stop_loss":   "95",
	}, &pos)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, pos.ID)

	var sized domain.Position
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"account_id":  "acct-2",
		"symbol":      "NVDA",
		"side":        "LONG",
		"entry_price": "100",
		"stop_loss":   "95",
		"balance":     "10000",
		"risk_pct":    "2",
	}, &sized))
	assert.Equal(t, "40", sized.Size.String())

	var invalid map[string]string
	code = env.do(t, http.MethodPost, "/api/positions", map[string]any{
		"account_id": "acct-1", "symbol": "AAPL", "side": "LONG", "size": "0", "entry_price": "100",
	}, &invalid)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, invalid["error"], "size")

	var list struct {
		Positions []domain.Position `json:"positions"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/positions?account=acct-1", nil, &list))
	require.Len(t, list.Positions, 1)

	var updated domain.Position
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/positions/"+pos.ID,
		map[string]any{"stop_loss": "96", "take_profit": "120"}, &updated))
	assert.Equal(t, "96", updated.StopLoss.String())

	var tick struct {
		Positions []domain.Position `json:"positions"`
	}
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/prices",
		map[string]any{"symbol": "AAPL", "price": "95.5"}, &tick))
	require.Len(t, tick.Positions, 1)
	assert.Equal(t, domain.PositionStatusClosed, tick.Positions[0].Status)
	assert.Equal(t, domain.CloseReasonStopLoss, tick.Positions[0].CloseReason)

	var closeResp struct {
		Closed bool `json:"closed"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/positions/"+pos.ID+"/close",
		map[string]any{"exit_price": "90"}, &closeResp))
	assert.False(t, closeResp.Closed, "second close is a no-op")

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, "/api/positions/"+pos.ID,
		map[string]any{"stop_loss": "90"}, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/positions/missing", nil, nil))

	env.dispatcher.Wait()
	var tx struct {
		Transmissions []domain.SignalTransmission `json:"transmissions"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/transmissions", nil, &tx))
	channels := map[string]bool{}
	for _, row := range tx.Transmissions {
		channels[row.Channel] = true
	}
	assert.Equal(t, map[string]bool{"live": true, "polling": true}, channels)
}

func TestSignalEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	var res service.SubmitResult
	code := env.do(t, http.MethodPost, "/api/signals", map[string]any{
		"symbol": "MSFT", "action": "BUY", "confidence": 0.7, "wait": true,
	}, &res)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.SignalStatusPending, res.Signal.Status)
	require.Contains(t, res.Deliveries, "live")
	assert.Equal(t, domain.TransmissionSent, res.Deliveries["live"].Status)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/signals",
		map[string]any{"symbol": "MSFT", "action": "BUY", "confidence": 1.5}, nil))

	var got domain.TradingSignal
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/signals/"+res.Signal.ID, nil, &got))
	assert.Equal(t, res.Signal.ID, got.ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/api/signals/"+res.Signal.ID,
		map[string]any{"status": "BOGUS"}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/api/signals/"+res.Signal.ID,
		map[string]any{"status": "CANCELLED"}, &got))
	assert.Equal(t, domain.SignalStatusCancelled, got.Status)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, "/api/signals/"+res.Signal.ID,
		map[string]any{"status": "EXECUTED"}, nil))

	var tx struct {
		Transmissions []domain.SignalTransmission `json:"transmissions"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/transmissions?signal_id="+res.Signal.ID, nil, &tx))
	assert.Len(t, tx.Transmissions, 2)

	var list struct {
		Signals []domain.TradingSignal `json:"signals"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/signals?limit=10", nil, &list))
	assert.Len(t, list.Signals, 1)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/signals?limit=-1", nil, nil))
}

func TestPollingClientFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	var conn domain.ClientConnection
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/clients/connect",
		map[string]any{"client_name": "mt5-bridge"}, &conn))
	require.NotEmpty(t, conn.ID)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/signals",
		map[string]any{"symbol": "EURUSD", "action": "SELL", "confidence": 0.9, "wait": true}, nil))

	var poll service.PollResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/clients/"+conn.ID+"/poll", nil, &poll))
	require.Len(t, poll.Signals, 1)
	assert.Equal(t, "EURUSD", poll.Signals[0].Symbol)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/clients/"+conn.ID+"/poll", nil, &poll))
	assert.Empty(t, poll.Signals)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/clients/"+conn.ID+"/heartbeat", nil, &conn))
	assert.Equal(t, domain.ConnectionConnected, conn.Status)

	var clients struct {
		Clients []domain.ClientConnection `json:"clients"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/clients", nil, &clients))
	assert.Len(t, clients.Clients, 1)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/clients/"+conn.ID+"/disconnect", nil, nil))
	assert.Equal(t, http.StatusGone, env.do(t, http.MethodPost, "/api/clients/"+conn.ID+"/heartbeat",
		map[string]any{"status": "CONNECTED"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/clients/connect",
		map[string]any{"client_name": "  "}, nil))
}

func TestPollRateLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 1, seen: map[string]int{}}
	env := newTestEnv(t, limiter)

	var conn domain.ClientConnection
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/clients/connect",
		map[string]any{"client_name": "bot"}, &conn))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/clients/"+conn.ID+"/poll", nil, nil))
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/clients/"+conn.ID+"/poll", nil, nil))
	assert.Equal(t, 2, limiter.seen["api:id:"+conn.ID])
}

func TestWebsocketReceivesSignalCreated(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	header := http.Header{"X-API-Key": []string{testAPIKey}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])

	// Registration completes on the hub goroutine, so poll briefly.
	var status struct {
		Mode        string `json:"mode"`
		LiveClients int    `json:"live_clients"`
	}
	for i := 0; i < 50 && status.LiveClients == 0; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/status", nil, &status))
		if status.LiveClients == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}
	assert.Equal(t, "server", status.Mode)
	assert.Equal(t, 1, status.LiveClients)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/signals",
		map[string]any{"symbol": "TSLA", "action": "HOLD", "confidence": 0.5, "wait": true}, nil))

	var env1 events.Envelope
	require.NoError(t, conn.ReadJSON(&env1))
	assert.Equal(t, events.SignalCreated, env1.Type)

	var sig domain.TradingSignal
	require.NoError(t, json.Unmarshal(env1.Data, &sig))
	assert.Equal(t, "TSLA", sig.Symbol)
}

func TestCORSPreflightAndRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/signals", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, env.srv.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
