package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

func TestPeriodic_SkipsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	p := NewPeriodic("test", time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}, testLogger())

	ctx := context.Background()
	require.True(t, p.Trigger(ctx))
	assert.False(t, p.Trigger(ctx))

	close(release)
	p.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, p.Trigger(ctx))
	p.Wait()
}

func TestPeriodic_RunFinishesInFlightTick(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	p := NewPeriodic("test", 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(50 * time.Millisecond)
		// The tick context survives shutdown.
		if ctx.Err() == nil {
			finished.Store(true)
		}
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, finished.Load())
}

func TestPeriodic_RejectsNonPositiveInterval(t *testing.T) {
	p := NewPeriodic("test", 0, func(context.Context) error { return nil }, testLogger())
	assert.Error(t, p.Run(context.Background()))
}

type heldLocker struct{ held bool }

func (l *heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	return func() { l.held = false }, nil
}

func TestExclusive_SkipsWhenLockHeld(t *testing.T) {
	var runs int
	fn := func(context.Context) error { runs++; return nil }
	locker := &heldLocker{}

	wrapped := Exclusive(locker, "monitor", time.Second, fn)
	require.NoError(t, wrapped(context.Background()))
	assert.Equal(t, 1, runs)
	assert.False(t, locker.held, "lock must be released after the tick")

	locker.held = true
	require.NoError(t, wrapped(context.Background()))
	assert.Equal(t, 1, runs)

	require.NoError(t, Exclusive(nil, "monitor", time.Second, fn)(context.Background()))
	assert.Equal(t, 2, runs)
}
