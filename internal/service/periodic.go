package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Periodic runs fn every interval. A tick that fires while the previous one
// is still running is skipped. On shutdown the in-flight tick is allowed to
// finish before Run returns.
type Periodic struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
	running  atomic.Bool
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewPeriodic creates a Periodic task. name is used only for logging.
func NewPeriodic(name string, interval time.Duration, fn func(context.Context) error, logger *slog.Logger) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With(slog.String("task", name)),
	}
}

// Run blocks until ctx is cancelled. Call in a goroutine.
func (p *Periodic) Run(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %s", p.name, p.interval)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "periodic task started", slog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			p.logger.Info("periodic task stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Trigger(ctx)
		}
	}
}

// Trigger starts one tick unless one is already running. It reports whether
// a tick was started.
func (p *Periodic) Trigger(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.DebugContext(ctx, "previous tick still running, skipping")
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("periodic task panicked", slog.Any("panic", r))
			}
		}()

		// The tick outlives a shutdown signal so a half-applied batch is not
		// abandoned.
		tickCtx := context.WithoutCancel(ctx)
		if err := p.fn(tickCtx); err != nil {
			p.logger.ErrorContext(tickCtx, "periodic task failed", slog.String("error", err.Error()))
		}
	}()
	return true
}

// Wait blocks until the in-flight tick, if any, has returned.
func (p *Periodic) Wait() {
	p.wg.Wait()
}

// Exclusive wraps fn so that across replicas only the holder of key runs a
// tick; the others skip it. A nil locker runs fn unconditionally.
func Exclusive(locker domain.LockManager, key string, ttl time.Duration, fn func(context.Context) error) func(context.Context) error {
	if locker == nil {
		return fn
	}
	return func(ctx context.Context) error {
		unlock, err := locker.Acquire(ctx, key, ttl)
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		defer unlock()
		return fn(ctx)
	}
}
