package redis

import (
	"crypto/tls"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

func TestClientConfigOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 5, TLSEnabled: true}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5, opts.PoolSize)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)

	assert.Nil(t, ClientConfig{Addr: "cache:6379"}.options().TLSConfig)
}

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "signalhub:price:AAPL", priceKey("AAPL"))
	assert.Equal(t, "signalhub:pending:c-1", pendingKey("c-1"))
	assert.Equal(t, "signalhub:lock:archive", lockKey("archive"))
	assert.Equal(t, "signalhub:ratelimit:api:id:c-1", rateLimitKey("api:id:c-1"))
}

func TestParseQuote(t *testing.T) {
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	q, ok, err := parseQuote("AAPL", map[string]string{
		"price": "101.25",
		"ts":    "1772463600000000000",
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("101.25")))
	assert.Equal(t, at, q.At)

	_, ok, err = parseQuote("AAPL", map[string]string{})
	require.NoError(t, err)
	assert.False(t, ok, "missing hash is not a quote")

	_, _, err = parseQuote("AAPL", map[string]string{"price": "abc", "ts": "1"})
	require.Error(t, err)
}

func TestDecodeSignals(t *testing.T) {
	raw, err := json.Marshal(domain.TradingSignal{ID: "s-1", Symbol: "AAPL", Action: domain.ActionBuy})
	require.NoError(t, err)

	sigs, err := decodeSignals([]string{string(raw)})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "s-1", sigs[0].ID)

	_, err = decodeSignals([]string{"{"})
	require.Error(t, err)
}
