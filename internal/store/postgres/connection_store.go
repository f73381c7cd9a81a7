package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// ConnectionStore implements domain.ConnectionStore using PostgreSQL.
type ConnectionStore struct {
	pool *pgxpool.Pool
}

// NewConnectionStore creates a new ConnectionStore backed by the given connection pool.
func NewConnectionStore(pool *pgxpool.Pool) *ConnectionStore {
	return &ConnectionStore{pool: pool}
}

const connectionSelectCols = `id, client_name, status, last_activity, connected_at`

func scanConnection(row pgx.Row) (domain.ClientConnection, error) {
	var (
		c      domain.ClientConnection
		status string
	)
	if err := row.Scan(&c.ID, &c.ClientName, &status, &c.LastActivity, &c.ConnectedAt); err != nil {
		return domain.ClientConnection{}, err
	}
	c.Status = domain.ConnectionStatus(status)
	return c, nil
}

// Upsert inserts or updates a connection.
func (s *ConnectionStore) Upsert(ctx context.Context, c domain.ClientConnection) error {
	const query = `
		INSERT INTO client_connections (` + connectionSelectCols + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status        = EXCLUDED.status,
			last_activity = EXCLUDED.last_activity`
	_, err := s.pool.Exec(ctx, query, c.ID, c.ClientName, string(c.Status), c.LastActivity, c.ConnectedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert connection %s: %w", c.ID, err)
	}
	return nil
}

// GetByID retrieves a connection by its primary key.
func (s *ConnectionStore) GetByID(ctx context.Context, id string) (domain.ClientConnection, error) {
	query := `SELECT ` + connectionSelectCols + ` FROM client_connections WHERE id = $1`
	c, err := scanConnection(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientConnection{}, domain.ErrNotFound
		}
		return domain.ClientConnection{}, fmt.Errorf("postgres: get connection %s: %w", id, err)
	}
	return c, nil
}

// GetByName returns the most recent session for a client name.
func (s *ConnectionStore) GetByName(ctx context.Context, clientName string) (domain.ClientConnection, error) {
	query := `SELECT ` + connectionSelectCols + `
		FROM client_connections WHERE client_name = $1
		ORDER BY connected_at DESC LIMIT 1`
	c, err := scanConnection(s.pool.QueryRow(ctx, query, clientName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientConnection{}, domain.ErrNotFound
		}
		return domain.ClientConnection{}, fmt.Errorf("postgres: get connection by name %s: %w", clientName, err)
	}
	return c, nil
}

// List returns every connection, newest first.
func (s *ConnectionStore) List(ctx context.Context) ([]domain.ClientConnection, error) {
	query := `SELECT ` + connectionSelectCols + ` FROM client_connections ORDER BY connected_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.ClientConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.ConnectionStore = (*ConnectionStore)(nil)
