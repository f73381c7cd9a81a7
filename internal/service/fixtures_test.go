package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
	"github.com/alanyoungcy/signalhub/internal/events"
	"github.com/alanyoungcy/signalhub/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

// recordingDispatcher captures every signal handed to it.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []domain.TradingSignal
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, sig domain.TradingSignal) map[string]domain.DeliveryOutcome {
	d.record(sig)
	return map[string]domain.DeliveryOutcome{
		"test": {Channel: "test", Status: domain.TransmissionSent, Attempts: 1},
	}
}

func (d *recordingDispatcher) DispatchAsync(sig domain.TradingSignal) {
	d.record(sig)
}

func (d *recordingDispatcher) record(sig domain.TradingSignal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sig)
}

func (d *recordingDispatcher) signals() []domain.TradingSignal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.TradingSignal(nil), d.sent...)
}

// recordingPublisher captures live events.
type recordingPublisher struct {
	mu    sync.Mutex
	types []events.Type
}

func (p *recordingPublisher) PublishPosition(ctx context.Context, t events.Type, _ domain.Position) error {
	p.add(t)
	return nil
}

func (p *recordingPublisher) PublishSignal(ctx context.Context, t events.Type, _ domain.TradingSignal) error {
	p.add(t)
	return nil
}

func (p *recordingPublisher) add(t events.Type) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, t)
}

func (p *recordingPublisher) count(t events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, got := range p.types {
		if got == t {
			n++
		}
	}
	return n
}

type fixedPrices map[string]decimal.Decimal

func (f fixedPrices) Prices(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote)
	for _, s := range symbols {
		if p, ok := f[s]; ok {
			out[s] = domain.Quote{Symbol: s, Price: p, At: time.Now()}
		}
	}
	return out, nil
}

type fixture struct {
	positionStore *memory.PositionStore
	signalStore   *memory.SignalStore
	queue         *memory.PendingQueue
	publisher     *recordingPublisher
	dispatcher    *recordingDispatcher
	positions     *PositionService
	signals       *SignalService
	registry      *ClientRegistry
}

func newFixture() *fixture {
	logger := testLogger()
	f := &fixture{
		positionStore: memory.NewPositionStore(),
		signalStore:   memory.NewSignalStore(),
		queue:         memory.NewPendingQueue(),
		publisher:     &recordingPublisher{},
		dispatcher:    &recordingDispatcher{},
	}
	f.registry = NewClientRegistry(memory.NewConnectionStore(), f.queue, f.signalStore, time.Minute, logger)
	f.positions = NewPositionService(f.positionStore, f.publisher, memory.NewAuditStore(), logger)
	f.signals = NewSignalService(f.signalStore, f.publisher, f.dispatcher, f.registry, logger)
	return f
}

func (f *fixture) monitor(prices fixedPrices) *ThresholdMonitor {
	return NewThresholdMonitor(f.positions, f.signals, prices, f.dispatcher, testLogger())
}

func longRequest() OpenPositionRequest {
	return OpenPositionRequest{
		AccountID:  "acct-1",
		Symbol:     "AAPL",
		Side:       domain.SideLong,
		Size:       dec("10"),
		EntryPrice: dec("100"),
		StopLoss:   decPtr("95"),
		TakeProfit: decPtr("110"),
	}
}
