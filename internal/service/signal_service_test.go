package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
)

func buySignal() SubmitSignalRequest {
	return SubmitSignalRequest{SignalCandidate: domain.SignalCandidate{
		Symbol:     "EURUSD",
		Action:     domain.ActionBuy,
		Confidence: 0.82,
		EntryPrice: decPtr("1.0850"),
		Source:     "test",
	}}
}

func TestSignalService_SubmitDispatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	res, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusPending, res.Signal.Status)
	assert.Nil(t, res.Deliveries)
	require.Len(t, f.dispatcher.signals(), 1)
	assert.Equal(t, res.Signal.ID, f.dispatcher.signals()[0].ID)

	req := buySignal()
	req.Wait = true
	res, err = f.signals.Submit(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, res.Deliveries, "test")
}

func TestSignalService_SubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitSignalRequest)
	}{
		{"confidence above one", func(r *SubmitSignalRequest) { r.Confidence = 1.01 }},
		{"negative confidence", func(r *SubmitSignalRequest) { r.Confidence = -0.1 }},
		{"unknown action", func(r *SubmitSignalRequest) { r.Action = "SHORT" }},
		{"missing symbol", func(r *SubmitSignalRequest) { r.Symbol = "" }},
		{"negative stop", func(r *SubmitSignalRequest) { r.StopPrice = decPtr("-1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := buySignal()
			tt.mutate(&req)
			_, err := f.signals.Submit(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, f.dispatcher.signals())
		})
	}
}

func TestSignalService_TransitionGraph(t *testing.T) {
	all := []domain.SignalStatus{
		domain.SignalStatusPending,
		domain.SignalStatusExecuted,
		domain.SignalStatusCancelled,
		domain.SignalStatusExpired,
	}
	for _, to := range all {
		t.Run("PENDING to "+string(to), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			res, err := f.signals.Submit(ctx, buySignal())
			require.NoError(t, err)

			got, err := f.signals.Transition(ctx, res.Signal.ID, to)
			if to == domain.SignalStatusPending {
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, to, got.Status)

			// Every terminal status is final.
			for _, next := range all {
				_, err := f.signals.Transition(ctx, res.Signal.ID, next)
				assert.ErrorIs(t, err, domain.ErrInvalidTransition, "%s -> %s", to, next)
			}
		})
	}
}

func TestSignalService_TransitionRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	res, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)

	_, err = f.signals.Transition(ctx, res.Signal.ID, "ARCHIVED")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.signals.Transition(ctx, "missing", domain.SignalStatusExecuted)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSignalService_ExpireOlderThan(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	old := domain.TradingSignal{
		ID: "old", Symbol: "AAPL", Action: domain.ActionBuy,
		Status: domain.SignalStatusPending, CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.signalStore.Create(ctx, old))
	executed := old
	executed.ID = "done"
	executed.Status = domain.SignalStatusExecuted
	require.NoError(t, f.signalStore.Create(ctx, executed))
	fresh, err := f.signals.Submit(ctx, buySignal())
	require.NoError(t, err)

	conn, err := f.registry.Connect(ctx, "terminal")
	require.NoError(t, err)
	require.NoError(t, f.queue.Push(ctx, conn.ID, old))

	n, err := f.signals.ExpireOlderThan(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.signals.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusExpired, got.Status)

	got, err = f.signals.Get(ctx, fresh.Signal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SignalStatusPending, got.Status)

	assert.Zero(t, f.queue.Len(conn.ID))
	assert.Equal(t, 1, f.publisher.count(events.SignalUpdated))
}

func TestSignalService_ListRecentDefaultsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for i := 0; i < 3; i++ {
		_, err := f.signals.Submit(ctx, buySignal())
		require.NoError(t, err)
	}
	list, err := f.signals.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
