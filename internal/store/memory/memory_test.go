package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

func TestPositionStore_ListOpenFiltersByAccountAndStatus(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	now := time.Now()

	require.NoError(t, s.Create(ctx, domain.Position{ID: "a", AccountID: "acct", Status: domain.PositionStatusOpen, OpenedAt: now}))
	require.NoError(t, s.Create(ctx, domain.Position{ID: "b", AccountID: "acct", Status: domain.PositionStatusClosed, OpenedAt: now}))
	require.NoError(t, s.Create(ctx, domain.Position{ID: "c", AccountID: "other", Status: domain.PositionStatusOpen, OpenedAt: now}))

	open, err := s.ListOpen(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].ID)

	all, err := s.ListAllOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.Create(ctx, domain.Position{ID: "a"}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, s.Update(ctx, domain.Position{ID: "zzz"}), domain.ErrNotFound)
}

func TestPositionStore_ListHistoryPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, s.Create(ctx, domain.Position{
			ID: id, AccountID: "acct", Status: domain.PositionStatusClosed,
			OpenedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := s.ListHistory(ctx, "acct", domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p3", page[0].ID)
	assert.Equal(t, "p2", page[1].ID)

	page, err = s.ListHistory(ctx, "acct", domain.ListOpts{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p1", page[0].ID)
}

func TestSignalStore_ListPendingBefore(t *testing.T) {
	ctx := context.Background()
	s := NewSignalStore()
	now := time.Now()

	require.NoError(t, s.Create(ctx, domain.TradingSignal{ID: "old", Status: domain.SignalStatusPending, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Create(ctx, domain.TradingSignal{ID: "new", Status: domain.SignalStatusPending, CreatedAt: now}))
	require.NoError(t, s.Create(ctx, domain.TradingSignal{ID: "done", Status: domain.SignalStatusExecuted, CreatedAt: now.Add(-time.Hour)}))

	got, err := s.ListPendingBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ID)
}

func TestTransmissionStore_ListBySignalKeepsAppendOrder(t *testing.T) {
	ctx := context.Background()
	s := NewTransmissionStore()
	now := time.Now()

	require.NoError(t, s.Append(ctx, domain.SignalTransmission{ID: "1", SignalID: "s", Attempt: 1, SentAt: now}))
	require.NoError(t, s.Append(ctx, domain.SignalTransmission{ID: "2", SignalID: "x", Attempt: 1, SentAt: now}))
	require.NoError(t, s.Append(ctx, domain.SignalTransmission{ID: "3", SignalID: "s", Attempt: 2, SentAt: now}))

	rows, err := s.ListBySignal(ctx, "s")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Attempt)
	assert.Equal(t, 2, rows[1].Attempt)

	recent, err := s.ListRecent(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "3", recent[0].ID)
}

func TestConnectionStore_GetByNameReturnsLatestSession(t *testing.T) {
	ctx := context.Background()
	s := NewConnectionStore()
	now := time.Now()

	require.NoError(t, s.Upsert(ctx, domain.ClientConnection{ID: "c1", ClientName: "mt5", ConnectedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Upsert(ctx, domain.ClientConnection{ID: "c2", ClientName: "mt5", ConnectedAt: now}))

	got, err := s.GetByName(ctx, "mt5")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)

	_, err = s.GetByName(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPendingQueue_DrainEmptiesQueue(t *testing.T) {
	ctx := context.Background()
	q := NewPendingQueue()

	require.NoError(t, q.Push(ctx, "c", domain.TradingSignal{ID: "s1"}))
	require.NoError(t, q.Push(ctx, "c", domain.TradingSignal{ID: "s2"}))
	require.NoError(t, q.Push(ctx, "c", domain.TradingSignal{ID: "s3"}))
	require.NoError(t, q.Remove(ctx, "c", []string{"s2"}))

	got, err := q.Drain(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "s3", got[1].ID)

	got, err = q.Drain(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignalBus_DeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus()

	ch, err := bus.Subscribe(ctx, "events")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "events", []byte("hello")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("ignored")))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestPriceCache_GetPricesOmitsUnknown(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache()
	require.NoError(t, c.SetPrice(ctx, "AAPL", decimal.NewFromInt(190), time.Now()))

	got, err := c.GetPrices(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got["AAPL"].Price.Equal(decimal.NewFromInt(190)))

	_, _, err = c.GetPrice(ctx, "MSFT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
