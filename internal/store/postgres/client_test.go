package postgres

import (
	"io/fs"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

func TestDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		got := DSN(ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"})
		assert.Equal(t, "postgres://x@y/z", got)
	})
	t.Run("fields with defaults", func(t *testing.T) {
		got := DSN(ClientConfig{Host: "db", Database: "signalhub", User: "u", Password: "p"})
		assert.Equal(t, "postgres://u:p@db:5432/signalhub?sslmode=disable", got)
	})
}

func TestAppendListOpts(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := appendListOpts("SELECT * FROM t WHERE a = $1", []any{"acct"}, "opened_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT * FROM t WHERE a = $1 AND opened_at >= $2 ORDER BY opened_at DESC LIMIT $3 OFFSET $4",
		query)
	assert.Equal(t, []any{"acct", since, 10, 20}, args)
}

func TestNullDecimalRoundTrip(t *testing.T) {
	assert.Nil(t, decimalPtr(nullDecimal(nil)))

	d := decimal.RequireFromString("101.25")
	got := decimalPtr(nullDecimal(&d))
	require.NotNil(t, got)
	assert.True(t, got.Equal(d))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "001_init.sql", entries[0].Name())
}
