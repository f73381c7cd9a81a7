// Package events defines the typed envelope pushed to live clients and the
// Broadcaster every producer publishes through.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Channel is the SignalBus channel carrying every live event.
const Channel = "events"

// Type tags the payload carried by an Envelope.
type Type string

const (
	PositionOpened  Type = "position-opened"
	PositionUpdated Type = "position-updated"
	PositionClosed  Type = "position-closed"
	SignalCreated   Type = "signal-created"
	SignalUpdated   Type = "signal-updated"
)

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool {
	switch t {
	case PositionOpened, PositionUpdated, PositionClosed, SignalCreated, SignalUpdated:
		return true
	}
	return false
}

// Envelope is the JSON frame sent to live clients. Seq increases
// monotonically within a process so consumers can drop duplicates.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher accepts live events.
type Publisher interface {
	PublishPosition(ctx context.Context, t Type, pos domain.Position) error
	PublishSignal(ctx context.Context, t Type, sig domain.TradingSignal) error
}

// Broadcaster serialises events into envelopes and publishes them on the
// SignalBus, from where the websocket hub fans them out.
type Broadcaster struct {
	bus    domain.SignalBus
	seq    atomic.Uint64
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster publishing on bus.
func NewBroadcaster(bus domain.SignalBus, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		bus:    bus,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// PublishPosition publishes a position-* event.
func (b *Broadcaster) PublishPosition(ctx context.Context, t Type, pos domain.Position) error {
	switch t {
	case PositionOpened, PositionUpdated, PositionClosed:
	default:
		return fmt.Errorf("events: %q is not a position event", t)
	}
	return b.publish(ctx, t, pos)
}

// PublishSignal publishes a signal-* event.
func (b *Broadcaster) PublishSignal(ctx context.Context, t Type, sig domain.TradingSignal) error {
	switch t {
	case SignalCreated, SignalUpdated:
	default:
		return fmt.Errorf("events: %q is not a signal event", t)
	}
	return b.publish(ctx, t, sig)
}

func (b *Broadcaster) publish(ctx context.Context, t Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", t, err)
	}
	env := Envelope{
		Type:      t,
		Data:      raw,
		Seq:       b.seq.Add(1),
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope %s: %w", t, err)
	}
	if err := b.bus.Publish(ctx, Channel, payload); err != nil {
		return fmt.Errorf("events: publish %s: %w", t, err)
	}
	b.logger.DebugContext(ctx, "event published",
		slog.String("type", string(t)),
		slog.Uint64("seq", env.Seq),
	)
	return nil
}

// Decode parses an envelope received from the bus.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("events: decode envelope: %w", err)
	}
	if !env.Type.Valid() {
		return Envelope{}, fmt.Errorf("events: unknown event type %q", env.Type)
	}
	return env, nil
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) PublishPosition(context.Context, Type, domain.Position) error { return nil }

func (Discard) PublishSignal(context.Context, Type, domain.TradingSignal) error { return nil }

var _ Publisher = (*Broadcaster)(nil)
