package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// PendingQueue is an in-process domain.PendingQueue.
type PendingQueue struct {
	mu     sync.Mutex
	queues map[string][]domain.TradingSignal
}

// NewPendingQueue creates an empty PendingQueue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{queues: make(map[string][]domain.TradingSignal)}
}

func (q *PendingQueue) Push(ctx context.Context, connectionID string, sig domain.TradingSignal) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[connectionID] = append(q.queues[connectionID], sig)
	return nil
}

func (q *PendingQueue) Drain(ctx context.Context, connectionID string) ([]domain.TradingSignal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.queues[connectionID]
	delete(q.queues, connectionID)
	return out, nil
}

func (q *PendingQueue) Remove(ctx context.Context, connectionID string, signalIDs []string) error {
	if len(signalIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(signalIDs))
	for _, id := range signalIDs {
		drop[id] = struct{}{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.queues[connectionID][:0]
	for _, sig := range q.queues[connectionID] {
		if _, ok := drop[sig.ID]; !ok {
			kept = append(kept, sig)
		}
	}
	if len(kept) == 0 {
		delete(q.queues, connectionID)
		return nil
	}
	q.queues[connectionID] = kept
	return nil
}

func (q *PendingQueue) Reset(ctx context.Context, connectionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.queues, connectionID)
	return nil
}

// Len returns the number of signals queued for connectionID.
func (q *PendingQueue) Len(connectionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[connectionID])
}

var _ domain.PendingQueue = (*PendingQueue)(nil)
