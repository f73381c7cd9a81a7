package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// PollResult is what a polling client receives. When Reconnected is set the
// client's previous session had gone stale and Connection carries the id to
// use from now on.
type PollResult struct {
	Connection  domain.ClientConnection `json:"connection"`
	Signals     []domain.TradingSignal  `json:"signals"`
	Reconnected bool                    `json:"reconnected"`
}

// ClientRegistry tracks pull-based consumers and their pending signal queues.
// A connection that has not been heard from within the heartbeat timeout is
// stale; it receives no new signals and its queue is discarded.
type ClientRegistry struct {
	conns   domain.ConnectionStore
	queue   domain.PendingQueue
	signals domain.SignalStore
	timeout time.Duration
	locks   *KeyedMutex
	now     func() time.Time
	logger  *slog.Logger
}

// NewClientRegistry creates a ClientRegistry. A non-positive timeout disables
// staleness.
func NewClientRegistry(
	conns domain.ConnectionStore,
	queue domain.PendingQueue,
	signals domain.SignalStore,
	heartbeatTimeout time.Duration,
	logger *slog.Logger,
) *ClientRegistry {
	return &ClientRegistry{
		conns:   conns,
		queue:   queue,
		signals: signals,
		timeout: heartbeatTimeout,
		locks:   NewKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "client_registry")),
	}
}

// Connect registers clientName. A live session under the same name is
// refreshed and keeps its id; otherwise a new session is opened.
func (r *ClientRegistry) Connect(ctx context.Context, clientName string) (domain.ClientConnection, error) {
	if clientName == "" {
		return domain.ClientConnection{}, domain.NewValidationError("client_name", "is required")
	}

	unlock := r.locks.Lock("name:" + clientName)
	defer unlock()

	now := r.now()
	prev, err := r.conns.GetByName(ctx, clientName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return domain.ClientConnection{}, fmt.Errorf("client_registry: lookup %q: %w", clientName, err)
	case prev.Status != domain.ConnectionDisconnected && !prev.StaleAt(now, r.timeout):
		prev.Status = domain.ConnectionConnected
		prev.LastActivity = now
		if err := r.conns.Upsert(ctx, prev); err != nil {
			return domain.ClientConnection{}, fmt.Errorf("client_registry: refresh %q: %w", prev.ID, err)
		}
		return prev, nil
	default:
		r.retire(ctx, prev)
	}

	conn := domain.ClientConnection{
		ID:           uuid.NewString(),
		ClientName:   clientName,
		Status:       domain.ConnectionConnected,
		LastActivity: now,
		ConnectedAt:  now,
	}
	if err := r.conns.Upsert(ctx, conn); err != nil {
		return domain.ClientConnection{}, fmt.Errorf("client_registry: create connection: %w", err)
	}
	r.logger.InfoContext(ctx, "client connected",
		slog.String("connection_id", conn.ID),
		slog.String("client_name", clientName),
	)
	return conn, nil
}

// Heartbeat records activity on a live connection. status may be empty
// (CONNECTED), CONNECTED or ERROR; DISCONNECTED ends the session.
func (r *ClientRegistry) Heartbeat(ctx context.Context, id string, status domain.ConnectionStatus) (domain.ClientConnection, error) {
	if status == "" {
		status = domain.ConnectionConnected
	}
	if !status.Valid() {
		return domain.ClientConnection{}, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == domain.ConnectionDisconnected {
		return r.Disconnect(ctx, id)
	}

	unlock := r.locks.Lock("conn:" + id)
	defer unlock()

	conn, err := r.conns.GetByID(ctx, id)
	if err != nil {
		return domain.ClientConnection{}, fmt.Errorf("client_registry: get connection %q: %w", id, err)
	}
	now := r.now()
	if conn.Status == domain.ConnectionDisconnected || conn.StaleAt(now, r.timeout) {
		r.retire(ctx, conn)
		return domain.ClientConnection{}, fmt.Errorf("client_registry: heartbeat %q: %w", id, domain.ErrStaleConnection)
	}

	conn.Status = status
	conn.LastActivity = now
	if err := r.conns.Upsert(ctx, conn); err != nil {
		return domain.ClientConnection{}, fmt.Errorf("client_registry: heartbeat %q: %w", id, err)
	}
	return conn, nil
}

// Poll hands out everything queued for the connection exactly once. A stale
// connection is re-registered under the same client name with an empty queue.
func (r *ClientRegistry) Poll(ctx context.Context, id string) (PollResult, error) {
	unlock := r.locks.Lock("conn:" + id)
	defer unlock()

	conn, err := r.conns.GetByID(ctx, id)
	if err != nil {
		return PollResult{}, fmt.Errorf("client_registry: get connection %q: %w", id, err)
	}

	now := r.now()
	if conn.Status == domain.ConnectionDisconnected || conn.StaleAt(now, r.timeout) {
		r.retire(ctx, conn)
		fresh, err := r.Connect(ctx, conn.ClientName)
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{Connection: fresh, Signals: []domain.TradingSignal{}, Reconnected: true}, nil
	}

	queued, err := r.queue.Drain(ctx, id)
	if err != nil {
		return PollResult{}, fmt.Errorf("client_registry: drain queue %q: %w", id, err)
	}

	conn.LastActivity = now
	if conn.Status == domain.ConnectionError {
		conn.Status = domain.ConnectionConnected
	}
	if err := r.conns.Upsert(ctx, conn); err != nil {
		r.logger.WarnContext(ctx, "record poll activity failed",
			slog.String("connection_id", id),
			slog.String("error", err.Error()),
		)
	}

	return PollResult{Connection: conn, Signals: r.deliverable(ctx, queued)}, nil
}

// deliverable drops queued signals that were withdrawn after being queued and
// returns the stored version of the rest.
func (r *ClientRegistry) deliverable(ctx context.Context, queued []domain.TradingSignal) []domain.TradingSignal {
	out := make([]domain.TradingSignal, 0, len(queued))
	for _, sig := range queued {
		current, err := r.signals.GetByID(ctx, sig.ID)
		if err != nil {
			r.logger.DebugContext(ctx, "queued signal lookup failed, delivering queued copy",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
			current = sig
		}
		if current.Status == domain.SignalStatusExpired || current.Status == domain.SignalStatusCancelled {
			r.logger.DebugContext(ctx, "dropping withdrawn signal",
				slog.String("signal_id", sig.ID),
				slog.String("status", string(current.Status)),
			)
			continue
		}
		out = append(out, current)
	}
	return out
}

// Disconnect ends a session and discards its queue.
func (r *ClientRegistry) Disconnect(ctx context.Context, id string) (domain.ClientConnection, error) {
	unlock := r.locks.Lock("conn:" + id)
	defer unlock()

	conn, err := r.conns.GetByID(ctx, id)
	if err != nil {
		return domain.ClientConnection{}, fmt.Errorf("client_registry: get connection %q: %w", id, err)
	}
	if conn.Status == domain.ConnectionDisconnected {
		return conn, nil
	}
	conn.Status = domain.ConnectionDisconnected
	conn.LastActivity = r.now()
	if err := r.conns.Upsert(ctx, conn); err != nil {
		return domain.ClientConnection{}, fmt.Errorf("client_registry: disconnect %q: %w", id, err)
	}
	if err := r.queue.Reset(ctx, id); err != nil {
		r.logger.WarnContext(ctx, "reset queue failed",
			slog.String("connection_id", id),
			slog.String("error", err.Error()),
		)
	}
	r.logger.InfoContext(ctx, "client disconnected",
		slog.String("connection_id", id),
		slog.String("client_name", conn.ClientName),
	)
	return conn, nil
}

// List returns every known connection, newest first.
func (r *ClientRegistry) List(ctx context.Context) ([]domain.ClientConnection, error) {
	list, err := r.conns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("client_registry: list: %w", err)
	}
	return list, nil
}

// Enqueue queues sig for every live connection and returns their ids.
func (r *ClientRegistry) Enqueue(ctx context.Context, sig domain.TradingSignal) ([]string, error) {
	list, err := r.conns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("client_registry: list: %w", err)
	}
	now := r.now()
	var queued []string
	for _, conn := range list {
		if !conn.Live(now, r.timeout) {
			continue
		}
		if err := r.queue.Push(ctx, conn.ID, sig); err != nil {
			r.logger.ErrorContext(ctx, "enqueue signal failed",
				slog.String("connection_id", conn.ID),
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		queued = append(queued, conn.ID)
	}
	return queued, nil
}

// Purge removes signalIDs from every connection's queue.
func (r *ClientRegistry) Purge(ctx context.Context, signalIDs []string) error {
	if len(signalIDs) == 0 {
		return nil
	}
	list, err := r.conns.List(ctx)
	if err != nil {
		return fmt.Errorf("client_registry: list: %w", err)
	}
	var errs []error
	for _, conn := range list {
		if conn.Status == domain.ConnectionDisconnected {
			continue
		}
		if err := r.queue.Remove(ctx, conn.ID, signalIDs); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", conn.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("client_registry: purge: %w", errors.Join(errs...))
	}
	return nil
}

// SweepStale marks stale connections DISCONNECTED and returns how many were
// retired.
func (r *ClientRegistry) SweepStale(ctx context.Context) (int, error) {
	list, err := r.conns.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("client_registry: list: %w", err)
	}
	now := r.now()
	n := 0
	for _, conn := range list {
		if conn.Status == domain.ConnectionDisconnected || !conn.StaleAt(now, r.timeout) {
			continue
		}
		unlock := r.locks.Lock("conn:" + conn.ID)
		current, err := r.conns.GetByID(ctx, conn.ID)
		if err == nil && current.Status != domain.ConnectionDisconnected && current.StaleAt(r.now(), r.timeout) {
			r.retire(ctx, current)
			n++
		}
		unlock()
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "stale clients retired", slog.Int("count", n))
	}
	return n, nil
}

// Sweeper returns a periodic task running SweepStale.
func (r *ClientRegistry) Sweeper(interval time.Duration) *Periodic {
	return NewPeriodic("client_sweep", interval, func(ctx context.Context) error {
		_, err := r.SweepStale(ctx)
		return err
	}, r.logger)
}

// retire marks conn DISCONNECTED and discards its queue. Failures are logged
// since the caller is already on a recovery path.
func (r *ClientRegistry) retire(ctx context.Context, conn domain.ClientConnection) {
	if err := r.queue.Reset(ctx, conn.ID); err != nil {
		r.logger.WarnContext(ctx, "reset queue failed",
			slog.String("connection_id", conn.ID),
			slog.String("error", err.Error()),
		)
	}
	if conn.Status == domain.ConnectionDisconnected {
		return
	}
	conn.Status = domain.ConnectionDisconnected
	if err := r.conns.Upsert(ctx, conn); err != nil {
		r.logger.WarnContext(ctx, "mark connection disconnected failed",
			slog.String("connection_id", conn.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.InfoContext(ctx, "stale client retired",
		slog.String("connection_id", conn.ID),
		slog.String("client_name", conn.ClientName),
	)
}
