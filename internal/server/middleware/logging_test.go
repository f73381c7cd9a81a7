package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_RedactsAPIKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?api_key=SECRET-KEY&types=signal.created", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	line := buf.String()
	require.NotEmpty(t, line)
	assert.NotContains(t, line, "SECRET-KEY")
	assert.Contains(t, line, "api_key=REDACTED")
	assert.Contains(t, line, "types=signal.created")
	assert.Contains(t, line, `"status":418`)
}

func TestRedactQuery(t *testing.T) {
	assert.Equal(t, "", redactQuery(""))
	assert.Equal(t, "limit=5", redactQuery("limit=5"))
	assert.Equal(t, "api_key=REDACTED", redactQuery("api_key=abc"))
	assert.Equal(t, "REDACTED", redactQuery("api_key=%zz"))
}
