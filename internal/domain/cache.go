package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// RateLimiter provides shared rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub for live events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// PendingQueue holds signals waiting for a polling client. Drain returns and
// removes everything queued in one step so a signal is handed out at most
// once.
type PendingQueue interface {
	Push(ctx context.Context, connectionID string, sig TradingSignal) error
	Drain(ctx context.Context, connectionID string) ([]TradingSignal, error)
	Remove(ctx context.Context, connectionID string, signalIDs []string) error
	Reset(ctx context.Context, connectionID string) error
}

// LockManager provides locks shared between replicas.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
