package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func registryWithClock(f *fixture) *clock {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.registry.now = c.now
	return c
}

func TestClientRegistry_ConnectReusesLiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := registryWithClock(f)

	first, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)
	c.advance(10 * time.Second)
	second, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = f.registry.Connect(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClientRegistry_HeartbeatOnStaleConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := registryWithClock(f)

	conn, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)

	c.advance(30 * time.Second)
	got, err := f.registry.Heartbeat(ctx, conn.ID, domain.ConnectionError)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionError, got.Status)

	c.advance(2 * time.Minute)
	_, err = f.registry.Heartbeat(ctx, conn.ID, "")
	assert.ErrorIs(t, err, domain.ErrStaleConnection)

	_, err = f.registry.Heartbeat(ctx, conn.ID, "BOGUS")
	assert.ErrorIs(t, err, domain.ErrValidation)

	fresh, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)
	assert.NotEqual(t, conn.ID, fresh.ID)
	assert.Equal(t, domain.ConnectionConnected, fresh.Status)
}

func TestClientRegistry_PollDeliversAtMostOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	registryWithClock(f)

	conn, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)
	res, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)

	queued, err := f.registry.Enqueue(ctx, res.Signal)
	require.NoError(t, err)
	assert.Equal(t, []string{conn.ID}, queued)

	poll, err := f.registry.Poll(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, poll.Reconnected)
	require.Len(t, poll.Signals, 1)
	assert.Equal(t, res.Signal.ID, poll.Signals[0].ID)

	poll, err = f.registry.Poll(ctx, conn.ID)
	require.NoError(t, err)
	assert.Empty(t, poll.Signals)
}

func TestClientRegistry_StalePollReconnectsWithEmptyQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := registryWithClock(f)

	conn, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)
	res, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)
	_, err = f.registry.Enqueue(ctx, res.Signal)
	require.NoError(t, err)

	c.advance(5 * time.Minute)

	// A stale connection is not a delivery target.
	queued, err := f.registry.Enqueue(ctx, res.Signal)
	require.NoError(t, err)
	assert.Empty(t, queued)

	poll, err := f.registry.Poll(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, poll.Reconnected)
	assert.NotEqual(t, conn.ID, poll.Connection.ID)
	assert.Empty(t, poll.Signals)
	assert.Zero(t, f.queue.Len(conn.ID))

	old, err := f.registry.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, old.Status)
}

func TestClientRegistry_PollDropsWithdrawnSignals(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	registryWithClock(f)

	conn, err := f.registry.Connect(ctx, "mt5")
	require.NoError(t, err)

	keep, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)
	cancel, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)
	for _, sig := range []domain.TradingSignal{keep.Signal, cancel.Signal} {
		_, err := f.registry.Enqueue(ctx, sig)
		require.NoError(t, err)
	}

	// Mark the second signal cancelled behind the registry's back so only
	// the poll-time filter can catch it.
	withdrawn := cancel.Signal
	withdrawn.Status = domain.SignalStatusCancelled
	require.NoError(t, f.signalStore.Update(ctx, withdrawn))

	poll, err := f.registry.Poll(ctx, conn.ID)
	require.NoError(t, err)
	require.Len(t, poll.Signals, 1)
	assert.Equal(t, keep.Signal.ID, poll.Signals[0].ID)
}

func TestClientRegistry_DisconnectAndSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := registryWithClock(f)

	a, err := f.registry.Connect(ctx, "a")
	require.NoError(t, err)
	b, err := f.registry.Connect(ctx, "b")
	require.NoError(t, err)

	got, err := f.registry.Disconnect(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, got.Status)

	c.advance(2 * time.Minute)
	n, err := f.registry.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	swept, err := f.registry.conns.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionDisconnected, swept.Status)

	list, err := f.registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
