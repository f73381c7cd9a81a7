package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type funcAdapter struct {
	name string
	fn   func(ctx context.Context) (Delivery, error)
}

func (f funcAdapter) Name() string { return f.name }

func (f funcAdapter) Deliver(ctx context.Context, _ domain.TradingSignal) (Delivery, error) {
	return f.fn(ctx)
}

func okAdapter(name string) funcAdapter {
	return funcAdapter{name: name, fn: func(context.Context) (Delivery, error) {
		return Delivery{Destination: name + "-dest", Response: "ok"}, nil
	}}
}

func testSignal() domain.TradingSignal {
	return domain.TradingSignal{
		ID:         "sig-1",
		Symbol:     "AAPL",
		Action:     domain.ActionBuy,
		Confidence: 0.9,
		Status:     domain.SignalStatusPending,
	}
}

func TestDispatcher_OneRowPerAdapterDespiteFailures(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, 50*time.Millisecond, testLogger())

	d.Register(okAdapter("live"))
	d.Register(funcAdapter{name: "broken", fn: func(context.Context) (Delivery, error) {
		return Delivery{}, errors.New("boom")
	}})
	d.Register(funcAdapter{name: "panicky", fn: func(context.Context) (Delivery, error) {
		panic("adapter bug")
	}})
	d.Register(funcAdapter{name: "slow", fn: func(ctx context.Context) (Delivery, error) {
		time.Sleep(time.Second)
		return Delivery{}, nil
	}})

	start := time.Now()
	outcomes := d.Dispatch(context.Background(), testSignal())
	assert.Less(t, time.Since(start), 900*time.Millisecond, "slow adapter must not hold up dispatch")

	require.Len(t, outcomes, 4)
	assert.Equal(t, domain.TransmissionSent, outcomes["live"].Status)
	assert.Equal(t, "live-dest", outcomes["live"].Destination)
	for _, name := range []string{"broken", "panicky", "slow"} {
		assert.Equal(t, domain.TransmissionFailed, outcomes[name].Status, name)
	}
	assert.Contains(t, outcomes["panicky"].Response, "panic")
	assert.Contains(t, outcomes["slow"].Response, "timed out")

	rows, err := log.ListBySignal(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestDispatcher_RetryWritesRowPerAttempt(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, time.Second, testLogger())

	var calls atomic.Int32
	d.Register(funcAdapter{name: "flaky", fn: func(context.Context) (Delivery, error) {
		if calls.Add(1) < 3 {
			return Delivery{}, errors.New("try again")
		}
		return Delivery{Response: "ok"}, nil
	}}, WithRetry(3, 0))

	outcomes := d.Dispatch(context.Background(), testSignal())
	assert.Equal(t, domain.TransmissionSent, outcomes["flaky"].Status)
	assert.Equal(t, 3, outcomes["flaky"].Attempts)

	rows, err := log.ListBySignal(context.Background(), "sig-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Attempt)
	}
	assert.Equal(t, domain.TransmissionFailed, rows[0].Status)
	assert.Equal(t, domain.TransmissionSent, rows[2].Status)
}

func TestDispatcher_RegisterAndUnregister(t *testing.T) {
	d := NewDispatcher(memory.NewTransmissionStore(), 0, testLogger())
	d.Register(okAdapter("telegram"))
	d.Register(okAdapter("discord"))
	d.Register(okAdapter("telegram"))
	assert.Equal(t, []string{"discord", "telegram"}, d.Channels())

	assert.True(t, d.Unregister("discord"))
	assert.False(t, d.Unregister("discord"))
	assert.Equal(t, []string{"telegram"}, d.Channels())
}

func TestDispatcher_NoAdapters(t *testing.T) {
	d := NewDispatcher(memory.NewTransmissionStore(), 0, testLogger())
	assert.Empty(t, d.Dispatch(context.Background(), testSignal()))
}

func TestDispatcher_AsyncWait(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, time.Second, testLogger())
	d.Register(funcAdapter{name: "slowish", fn: func(context.Context) (Delivery, error) {
		time.Sleep(20 * time.Millisecond)
		return Delivery{}, nil
	}})

	for i := 0; i < 5; i++ {
		d.DispatchAsync(testSignal())
	}
	d.Wait()

	rows, err := log.ListBySignal(context.Background(), "sig-1")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestDispatcher_CallerCancellationDoesNotAbortDelivery(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, time.Second, testLogger())
	d.Register(funcAdapter{name: "live", fn: func(ctx context.Context) (Delivery, error) {
		return Delivery{}, ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes := d.Dispatch(ctx, testSignal())
	assert.Equal(t, domain.TransmissionSent, outcomes["live"].Status)
}

func TestDispatcher_AlertsOnceAfterRepeatedFailures(t *testing.T) {
	log := memory.NewTransmissionStore()
	d := NewDispatcher(log, time.Second, testLogger())
	alerts := NewFixedSender("telegram", nil)
	d.SetObserver(NewFailureAlerter(alerts, 2, testLogger()))

	var healthy atomic.Bool
	d.Register(okAdapter("live"))
	d.Register(funcAdapter{name: "discord", fn: func(context.Context) (Delivery, error) {
		if healthy.Load() {
			return Delivery{Response: "ok"}, nil
		}
		return Delivery{}, errors.New("webhook unreachable")
	}})

	sig := testSignal()
	d.Dispatch(context.Background(), sig)
	assert.Empty(t, alerts.Sent(), "one failure is below the threshold")

	d.Dispatch(context.Background(), sig)
	d.Dispatch(context.Background(), sig)
	sent := alerts.Sent()
	require.Len(t, sent, 1, "a streak alerts once")
	assert.Contains(t, sent[0].Title, "discord")
	assert.Contains(t, sent[0].Body, "webhook unreachable")

	// Recovery resets the streak so the next run of failures alerts again.
	healthy.Store(true)
	d.Dispatch(context.Background(), sig)
	healthy.Store(false)
	d.Dispatch(context.Background(), sig)
	d.Dispatch(context.Background(), sig)
	assert.Len(t, alerts.Sent(), 2)
}
