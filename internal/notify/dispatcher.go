// Package notify delivers trading signals to every registered channel. Each
// channel runs in its own goroutine with a timeout so a slow or broken channel
// never holds up the others, and every attempt is written to the
// transmission log.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second

	maxResponseLen = 1024
)

// Adapter is one delivery channel.
type Adapter interface {
	// Name identifies the channel in the transmission log (e.g. "telegram").
	Name() string
	// Deliver sends sig. A returned error marks the attempt FAILED.
	Deliver(ctx context.Context, sig domain.TradingSignal) (Delivery, error)
}

// Delivery describes a successful hand-off.
type Delivery struct {
	Destination string
	Response    string
}

type registration struct {
	adapter  Adapter
	attempts int
	backoff  time.Duration
}

// Option configures an adapter registration.
type Option func(*registration)

// WithRetry retries a failed delivery up to attempts times in total, waiting
// backoff between tries. Each attempt is logged separately.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *registration) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if backoff >= 0 {
			r.backoff = backoff
		}
	}
}

// Dispatcher fans signals out to the registered adapters.
type Dispatcher struct {
	mu       sync.RWMutex
	adapters map[string]registration

	log      domain.TransmissionStore
	timeout  time.Duration
	inAir    sync.WaitGroup
	observer OutcomeObserver
	logger   *slog.Logger
}

// OutcomeObserver is told the final outcome of every channel of every
// dispatch.
type OutcomeObserver interface {
	Observe(ctx context.Context, sig domain.TradingSignal, out domain.DeliveryOutcome)
}

// SetObserver installs o. Call it before the first dispatch.
func (d *Dispatcher) SetObserver(o OutcomeObserver) {
	d.observer = o
}

// NewDispatcher creates a Dispatcher that records attempts in log. A
// non-positive timeout selects DefaultTimeout.
func NewDispatcher(log domain.TransmissionStore, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		adapters: make(map[string]registration),
		log:      log,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// Register adds a, replacing any adapter with the same name.
func (d *Dispatcher) Register(a Adapter, opts ...Option) {
	reg := registration{adapter: a, attempts: 1}
	for _, opt := range opts {
		opt(&reg)
	}
	d.mu.Lock()
	d.adapters[a.Name()] = reg
	d.mu.Unlock()
	d.logger.Info("channel registered",
		slog.String("channel", a.Name()),
		slog.Int("attempts", reg.attempts),
	)
}

// Unregister removes the named adapter and reports whether it was present.
// In-flight dispatches keep using the snapshot they started with.
func (d *Dispatcher) Unregister(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.adapters[name]; !ok {
		return false
	}
	delete(d.adapters, name)
	return true
}

// Channels returns the registered channel names in sorted order.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.adapters))
	for name := range d.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) snapshot() []registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	regs := make([]registration, 0, len(d.adapters))
	for _, r := range d.adapters {
		regs = append(regs, r)
	}
	return regs
}

// Dispatch delivers sig through every adapter concurrently and waits for all
// of them. It never fails: each channel's result is in the returned map.
func (d *Dispatcher) Dispatch(ctx context.Context, sig domain.TradingSignal) map[string]domain.DeliveryOutcome {
	regs := d.snapshot()
	outcomes := make(map[string]domain.DeliveryOutcome, len(regs))
	if len(regs) == 0 {
		d.logger.WarnContext(ctx, "no channels registered", slog.String("signal_id", sig.ID))
		return outcomes
	}

	// Deliveries complete even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, reg := range regs {
		g.Go(func() error {
			out := d.deliver(ctx, reg, sig)
			mu.Lock()
			outcomes[out.Channel] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for _, out := range outcomes {
		if out.Status == domain.TransmissionSent {
			sent++
		}
		if d.observer != nil {
			d.observer.Observe(ctx, sig, out)
		}
	}
	d.logger.InfoContext(ctx, "signal dispatched",
		slog.String("signal_id", sig.ID),
		slog.String("symbol", sig.Symbol),
		slog.Int("channels", len(outcomes)),
		slog.Int("sent", sent),
	)
	return outcomes
}

// DispatchAsync dispatches sig in the background. Wait blocks until every
// background dispatch has finished.
func (d *Dispatcher) DispatchAsync(sig domain.TradingSignal) {
	d.inAir.Add(1)
	go func() {
		defer d.inAir.Done()
		d.Dispatch(context.Background(), sig)
	}()
}

// Wait blocks until all DispatchAsync calls have completed.
func (d *Dispatcher) Wait() {
	d.inAir.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, reg registration, sig domain.TradingSignal) domain.DeliveryOutcome {
	name := reg.adapter.Name()
	out := domain.DeliveryOutcome{Channel: name}

	for attempt := 1; attempt <= reg.attempts; attempt++ {
		out.Attempts = attempt
		delivery, err := d.attempt(ctx, reg.adapter, sig)

		row := domain.SignalTransmission{
			ID:          uuid.NewString(),
			SignalID:    sig.ID,
			Channel:     name,
			Destination: delivery.Destination,
			Status:      domain.TransmissionSent,
			Response:    delivery.Response,
			Attempt:     attempt,
			SentAt:      time.Now().UTC(),
		}
		if err != nil {
			row.Status = domain.TransmissionFailed
			row.Response = err.Error()
			d.logger.ErrorContext(ctx, "delivery failed",
				slog.String("channel", name),
				slog.String("signal_id", sig.ID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		row.Response = truncate(row.Response, maxResponseLen)
		if appendErr := d.log.Append(ctx, row); appendErr != nil {
			d.logger.ErrorContext(ctx, "append transmission failed",
				slog.String("channel", name),
				slog.String("signal_id", sig.ID),
				slog.String("error", appendErr.Error()),
			)
		}

		out.Status = row.Status
		out.Destination = row.Destination
		out.Response = row.Response
		if err == nil {
			return out
		}
		if attempt < reg.attempts && reg.backoff > 0 {
			time.Sleep(reg.backoff * time.Duration(attempt))
		}
	}
	return out
}

type result struct {
	delivery Delivery
	err      error
}

// attempt runs one Deliver call bounded by the dispatcher timeout. A panic in
// the adapter is reported as a failure.
func (d *Dispatcher) attempt(ctx context.Context, a Adapter, sig domain.TradingSignal) (Delivery, error) {
	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &domain.ChannelError{Channel: a.Name(), Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		delivery, err := a.Deliver(actx, sig)
		done <- result{delivery: delivery, err: err}
	}()

	select {
	case r := <-done:
		return r.delivery, r.err
	case <-actx.Done():
		return Delivery{}, &domain.ChannelError{
			Channel: a.Name(),
			Err:     fmt.Errorf("timed out after %s: %w", d.timeout, actx.Err()),
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
