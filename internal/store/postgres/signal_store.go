package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, symbol, action, confidence, entry_price,
	target_price, stop_price, rationale, source, position_id, status,
	created_at, updated_at`

func scanSignal(row pgx.Row) (domain.TradingSignal, error) {
	var (
		s                   domain.TradingSignal
		action, status      string
		entry, target, stop decimal.NullDecimal
	)
	err := row.Scan(
		&s.ID, &s.Symbol, &action, &s.Confidence, &entry,
		&target, &stop, &s.Rationale, &s.Source, &s.PositionID, &status,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.TradingSignal{}, err
	}
	s.Action = domain.SignalAction(action)
	s.Status = domain.SignalStatus(status)
	s.EntryPrice = decimalPtr(entry)
	s.TargetPrice = decimalPtr(target)
	s.StopPrice = decimalPtr(stop)
	return s, nil
}

func collectSignals(rows pgx.Rows) ([]domain.TradingSignal, error) {
	defer rows.Close()
	var out []domain.TradingSignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a new signal.
func (st *SignalStore) Create(ctx context.Context, s domain.TradingSignal) error {
	const query = `
		INSERT INTO trading_signals (
			id, symbol, action, confidence, entry_price,
			target_price, stop_price, rationale, source, position_id, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := st.pool.Exec(ctx, query,
		s.ID, s.Symbol, string(s.Action), s.Confidence, nullDecimal(s.EntryPrice),
		nullDecimal(s.TargetPrice), nullDecimal(s.StopPrice), s.Rationale, s.Source, s.PositionID,
		string(s.Status), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create signal %s: %w", s.ID, err)
	}
	return nil
}

// Update writes the status of a signal. Every other column is immutable once
// the signal has been created.
func (st *SignalStore) Update(ctx context.Context, s domain.TradingSignal) error {
	const query = `UPDATE trading_signals SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := st.pool.Exec(ctx, query, s.ID, string(s.Status), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update signal %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a signal by its primary key.
func (st *SignalStore) GetByID(ctx context.Context, id string) (domain.TradingSignal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM trading_signals WHERE id = $1`
	s, err := scanSignal(st.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradingSignal{}, domain.ErrNotFound
		}
		return domain.TradingSignal{}, fmt.Errorf("postgres: get signal %s: %w", id, err)
	}
	return s, nil
}

// ListRecent returns signals newest first.
func (st *SignalStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradingSignal, error) {
	query, args := appendListOpts(
		`SELECT `+signalSelectCols+` FROM trading_signals WHERE 1=1`,
		nil, "created_at", opts,
	)
	rows, err := st.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	return collectSignals(rows)
}

// ListPendingBefore returns PENDING signals created before the given time.
func (st *SignalStore) ListPendingBefore(ctx context.Context, before time.Time) ([]domain.TradingSignal, error) {
	query := `SELECT ` + signalSelectCols + `
		FROM trading_signals WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at`
	rows, err := st.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending signals: %w", err)
	}
	return collectSignals(rows)
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
