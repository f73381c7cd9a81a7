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

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, account_id, symbol, side, size, entry_price,
	current_price, stop_loss, take_profit, status, unrealized_pnl,
	realized_pnl, pnl_percent, close_reason, exit_price, opened_at,
	closed_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                          domain.Position
		side, status, reason       string
		current, sl, tp, exitPrice decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Symbol, &side, &p.Size, &p.EntryPrice,
		&current, &sl, &tp, &status, &p.UnrealizedPnL,
		&p.RealizedPnL, &p.PnLPercent, &reason, &exitPrice, &p.OpenedAt,
		&p.ClosedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(reason)
	p.CurrentPrice = decimalPtr(current)
	p.StopLoss = decimalPtr(sl)
	p.TakeProfit = decimalPtr(tp)
	p.ExitPrice = decimalPtr(exitPrice)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, account_id, symbol, side, size, entry_price,
			current_price, stop_loss, take_profit, status, unrealized_pnl,
			realized_pnl, pnl_percent, close_reason, exit_price, opened_at,
			closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.AccountID, p.Symbol, string(p.Side), p.Size, p.EntryPrice,
		nullDecimal(p.CurrentPrice), nullDecimal(p.StopLoss), nullDecimal(p.TakeProfit),
		string(p.Status), p.UnrealizedPnL,
		p.RealizedPnL, p.PnLPercent, string(p.CloseReason), nullDecimal(p.ExitPrice), p.OpenedAt,
		p.ClosedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			current_price  = $2,
			stop_loss      = $3,
			take_profit    = $4,
			status         = $5,
			unrealized_pnl = $6,
			realized_pnl   = $7,
			pnl_percent    = $8,
			close_reason   = $9,
			exit_price     = $10,
			closed_at      = $11,
			updated_at     = $12
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID,
		nullDecimal(p.CurrentPrice), nullDecimal(p.StopLoss), nullDecimal(p.TakeProfit),
		string(p.Status), p.UnrealizedPnL, p.RealizedPnL, p.PnLPercent,
		string(p.CloseReason), nullDecimal(p.ExitPrice), p.ClosedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a position by its primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`
	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns the OPEN positions of one account.
func (s *PositionStore) ListOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE account_id = $1 AND status = 'OPEN'
		ORDER BY opened_at DESC`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	return collectPositions(rows)
}

// ListAllOpen returns every OPEN position.
func (s *PositionStore) ListAllOpen(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'OPEN' ORDER BY opened_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all open positions: %w", err)
	}
	return collectPositions(rows)
}

// ListHistory returns an account's positions of any status.
func (s *PositionStore) ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := appendListOpts(
		`SELECT `+positionSelectCols+` FROM positions WHERE account_id = $1`,
		[]any{accountID}, "opened_at", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	return collectPositions(rows)
}

// ListClosedBefore returns positions closed before the given time.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE status = 'CLOSED' AND closed_at < $1
		ORDER BY closed_at`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	return collectPositions(rows)
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
