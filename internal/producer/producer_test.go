package producer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

func TestHTTPFetchArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"AAPL","action":"BUY","confidence":0.8,"entry_price":"190.5","rationale":"breakout"}]`))
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.URL, "secret", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, domain.ActionBuy, got[0].Action)
	require.NotNil(t, got[0].EntryPrice)
	assert.Equal(t, "190.5", got[0].EntryPrice.String())
}

func TestHTTPFetchWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"signals":[{"symbol":"MSFT","action":"SELL","confidence":0.6}]}`))
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.URL, "", 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionSell, got[0].Action)
}

func TestHTTPFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			_, _ = w.Write([]byte(`not json`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL+"/down", "", time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTP(srv.URL+"/broken", "", time.Second).Fetch(context.Background())
	require.Error(t, err)
}

func TestStaticOnce(t *testing.T) {
	p := NewStatic("demo", true, domain.SignalCandidate{Symbol: "AAPL", Action: domain.ActionHold})

	got, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = p.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "demo", p.Name())
}
