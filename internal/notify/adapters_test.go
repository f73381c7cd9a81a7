package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
	"github.com/alanyoungcy/signalhub/internal/store/memory"
)

func TestLiveAdapter_PublishesSignalCreated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := memory.NewSignalBus()
	sub, err := bus.Subscribe(ctx, events.Channel)
	require.NoError(t, err)

	a := NewLiveAdapter(events.NewBroadcaster(bus, testLogger()))
	d, err := a.Deliver(ctx, testSignal())
	require.NoError(t, err)
	assert.Equal(t, events.Channel, d.Destination)

	select {
	case payload := <-sub:
		env, err := events.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, events.SignalCreated, env.Type)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

type failingPublisher struct{}

func (failingPublisher) PublishPosition(context.Context, events.Type, domain.Position) error {
	return errors.New("bus down")
}

func (failingPublisher) PublishSignal(context.Context, events.Type, domain.TradingSignal) error {
	return errors.New("bus down")
}

func TestLiveAdapter_BusFailureIsChannelError(t *testing.T) {
	_, err := NewLiveAdapter(failingPublisher{}).Deliver(context.Background(), testSignal())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	var chErr *domain.ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, "live", chErr.Channel)
}

type stubEnqueuer struct {
	ids []string
	err error
}

func (s stubEnqueuer) Enqueue(context.Context, domain.TradingSignal) ([]string, error) {
	return s.ids, s.err
}

func TestPollingAdapter(t *testing.T) {
	d, err := NewPollingAdapter(stubEnqueuer{ids: []string{"c1", "c2"}}).Deliver(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, "c1,c2", d.Destination)
	assert.Equal(t, "queued for 2 client(s)", d.Response)

	_, err = NewPollingAdapter(stubEnqueuer{err: errors.New("redis down")}).Deliver(context.Background(), testSignal())
	assert.Error(t, err)
}

func TestFormatSignal(t *testing.T) {
	entry := decimal.RequireFromString("187.25")
	sig := testSignal()
	sig.EntryPrice = &entry
	sig.Rationale = "breakout above resistance"

	msg := FormatSignal(sig)
	assert.Equal(t, "AAPL BUY", msg.Title)
	assert.Equal(t, colorBuy, msg.Color)
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, "HIGH (90%)", msg.Fields[0].Value)
	assert.Equal(t, "187.25", msg.Fields[1].Value)
	assert.Contains(t, msg.Body, "breakout")

	sig.PositionID = "pos-1"
	sig.Action = domain.ActionSell
	msg = FormatSignal(sig)
	assert.Equal(t, colorSell, msg.Color)
	assert.Contains(t, msg.Title, "position closed")
}

func TestTelegramSender_PostsHTMLMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42", srv.URL)
	resp, err := s.Send(context.Background(), FormatSignal(testSignal()))
	require.NoError(t, err)
	assert.Contains(t, resp, `"message_id":7`)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Contains(t, got["text"], "<b>AAPL BUY</b>")
}

func TestTelegramSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	adapter := NewChatAdapter(NewTelegramSender("bad", "42", srv.URL))
	_, err := adapter.Deliver(context.Background(), testSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	var chErr *domain.ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, "telegram", chErr.Channel)
}

func TestDiscordSender_PostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL+"/api/webhooks/1/secret", "signalhub")
	resp, err := s.Send(context.Background(), FormatSignal(testSignal()))
	require.NoError(t, err)
	assert.Equal(t, "status 204", resp)
	assert.Equal(t, "signalhub", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, colorBuy, got.Embeds[0].Color)
	assert.NotContains(t, s.Destination(), "secret")
}

func TestChatAdapter_FixedSender(t *testing.T) {
	fixed := NewFixedSender("telegram", nil)
	d, err := NewChatAdapter(fixed).Deliver(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, "recorded", d.Response)
	assert.Len(t, fixed.Sent(), 1)

	_, err = NewChatAdapter(NewFixedSender("discord", errors.New("offline"))).Deliver(context.Background(), testSignal())
	assert.Error(t, err)
}

func TestChatSenders_RequestErrorOmitsCredentials(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, 5*time.Second, testLogger())
	d.Register(NewChatAdapter(NewTelegramSender("SECRET-BOT-TOKEN", "42", "http://127.0.0.1:1")))
	d.Register(NewChatAdapter(NewDiscordSender("http://127.0.0.1:1/api/webhooks/1/SECRET-HOOK", "hub")))

	outcomes := d.Dispatch(context.Background(), testSignal())
	require.Len(t, outcomes, 2)

	rows, err := log.ListBySignal(context.Background(), "sig-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, domain.TransmissionFailed, row.Status, row.Channel)
		assert.NotEmpty(t, row.Response, row.Channel)
		assert.NotContains(t, row.Response, "SECRET", row.Channel)
	}
}
