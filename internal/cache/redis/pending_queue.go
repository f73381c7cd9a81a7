package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// PendingQueue implements domain.PendingQueue with one Redis LIST per
// connection at "pending:{connectionID}". Entries are JSON-encoded signals.
type PendingQueue struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPendingQueue creates a PendingQueue. Queues untouched for ttl expire on
// their own; zero keeps them until drained or reset.
func NewPendingQueue(c *Client, ttl time.Duration) *PendingQueue {
	return &PendingQueue{rdb: c.Underlying(), ttl: ttl}
}

func pendingKey(connectionID string) string {
	return "signalhub:pending:" + connectionID
}

// Push appends sig to the connection's queue.
func (q *PendingQueue) Push(ctx context.Context, connectionID string, sig domain.TradingSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", sig.ID, err)
	}
	key := pendingKey(connectionID)
	pipe := q.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if q.ttl > 0 {
		pipe.Expire(ctx, key, q.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push pending %s: %w", connectionID, err)
	}
	return nil
}

// Drain reads and deletes the queue in one MULTI so concurrent drains never
// hand out the same signal twice.
func (q *PendingQueue) Drain(ctx context.Context, connectionID string) ([]domain.TradingSignal, error) {
	key := pendingKey(connectionID)
	pipe := q.rdb.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: drain pending %s: %w", connectionID, err)
	}
	return decodeSignals(rangeCmd.Val())
}

// Remove deletes specific signals from the queue, keeping the order of the
// rest. It retries when the queue changes underneath it.
func (q *PendingQueue) Remove(ctx context.Context, connectionID string, signalIDs []string) error {
	if len(signalIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(signalIDs))
	for _, id := range signalIDs {
		drop[id] = struct{}{}
	}
	key := pendingKey(connectionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		var removals []string
		for _, entry := range raw {
			var sig domain.TradingSignal
			if err := json.Unmarshal([]byte(entry), &sig); err != nil {
				continue
			}
			if _, ok := drop[sig.ID]; ok {
				removals = append(removals, entry)
			}
		}
		if len(removals) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, entry := range removals {
				pipe.LRem(ctx, key, 1, entry)
			}
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := q.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis: remove pending %s: %w", connectionID, err)
		}
		return nil
	}
	return fmt.Errorf("redis: remove pending %s: %w", connectionID, redis.TxFailedErr)
}

// Reset discards the queue.
func (q *PendingQueue) Reset(ctx context.Context, connectionID string) error {
	if err := q.rdb.Del(ctx, pendingKey(connectionID)).Err(); err != nil {
		return fmt.Errorf("redis: reset pending %s: %w", connectionID, err)
	}
	return nil
}

func decodeSignals(raw []string) ([]domain.TradingSignal, error) {
	out := make([]domain.TradingSignal, 0, len(raw))
	for _, entry := range raw {
		var sig domain.TradingSignal
		if err := json.Unmarshal([]byte(entry), &sig); err != nil {
			return nil, fmt.Errorf("redis: decode pending signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PendingQueue = (*PendingQueue)(nil)
