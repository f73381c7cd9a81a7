package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// TransmissionStore implements domain.TransmissionStore using PostgreSQL.
// Rows are only ever inserted.
type TransmissionStore struct {
	pool *pgxpool.Pool
}

// NewTransmissionStore creates a new TransmissionStore backed by the given connection pool.
func NewTransmissionStore(pool *pgxpool.Pool) *TransmissionStore {
	return &TransmissionStore{pool: pool}
}

const transmissionSelectCols = `id, signal_id, channel, destination, status, response, attempt, sent_at`

func collectTransmissions(rows pgx.Rows) ([]domain.SignalTransmission, error) {
	defer rows.Close()
	var out []domain.SignalTransmission
	for rows.Next() {
		var (
			t      domain.SignalTransmission
			status string
		)
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Channel, &t.Destination, &status, &t.Response, &t.Attempt, &t.SentAt); err != nil {
			return nil, err
		}
		t.Status = domain.TransmissionStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Append inserts one transmission row.
func (s *TransmissionStore) Append(ctx context.Context, t domain.SignalTransmission) error {
	const query = `
		INSERT INTO signal_transmissions (` + transmissionSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.SignalID, t.Channel, t.Destination, string(t.Status), t.Response, t.Attempt, t.SentAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append transmission %s: %w", t.ID, err)
	}
	return nil
}

// ListRecent returns transmissions newest first.
func (s *TransmissionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.SignalTransmission, error) {
	query, args := appendListOpts(
		`SELECT `+transmissionSelectCols+` FROM signal_transmissions WHERE 1=1`,
		nil, "sent_at", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transmissions: %w", err)
	}
	return collectTransmissions(rows)
}

// ListBySignal returns every attempt for one signal in attempt order.
func (s *TransmissionStore) ListBySignal(ctx context.Context, signalID string) ([]domain.SignalTransmission, error) {
	query := `SELECT ` + transmissionSelectCols + `
		FROM signal_transmissions WHERE signal_id = $1 ORDER BY sent_at, attempt`
	rows, err := s.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transmissions for %s: %w", signalID, err)
	}
	return collectTransmissions(rows)
}

// ListBefore returns transmissions sent before the given time.
func (s *TransmissionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalTransmission, error) {
	query := `SELECT ` + transmissionSelectCols + `
		FROM signal_transmissions WHERE sent_at < $1 ORDER BY sent_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transmissions before: %w", err)
	}
	return collectTransmissions(rows)
}

// Compile-time interface check.
var _ domain.TransmissionStore = (*TransmissionStore)(nil)
