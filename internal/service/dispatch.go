package service

import (
	"context"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// SignalDispatcher fans a signal out to every registered delivery channel.
type SignalDispatcher interface {
	Dispatch(ctx context.Context, sig domain.TradingSignal) map[string]domain.DeliveryOutcome
	DispatchAsync(sig domain.TradingSignal)
}

// QueuePurger removes signals from every polling client's pending queue.
type QueuePurger interface {
	Purge(ctx context.Context, signalIDs []string) error
}
