package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Positions are never deleted.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context, accountID string) ([]Position, error)
	ListAllOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, accountID string, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// SignalStore persists trading signals.
type SignalStore interface {
	Create(ctx context.Context, sig TradingSignal) error
	Update(ctx context.Context, sig TradingSignal) error
	GetByID(ctx context.Context, id string) (TradingSignal, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]TradingSignal, error)
	ListPendingBefore(ctx context.Context, before time.Time) ([]TradingSignal, error)
}

// TransmissionStore is the append-only transmission log.
type TransmissionStore interface {
	Append(ctx context.Context, t SignalTransmission) error
	ListRecent(ctx context.Context, opts ListOpts) ([]SignalTransmission, error)
	ListBySignal(ctx context.Context, signalID string) ([]SignalTransmission, error)
	ListBefore(ctx context.Context, before time.Time) ([]SignalTransmission, error)
}

// ConnectionStore persists polling client connections. Connections are never
// hard-deleted, only marked DISCONNECTED.
type ConnectionStore interface {
	Upsert(ctx context.Context, conn ClientConnection) error
	GetByID(ctx context.Context, id string) (ClientConnection, error)
	GetByName(ctx context.Context, clientName string) (ClientConnection, error)
	List(ctx context.Context) ([]ClientConnection, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
