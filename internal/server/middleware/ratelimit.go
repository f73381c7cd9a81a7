package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// KeyFunc derives the rate-limit bucket of a request.
type KeyFunc func(r *http.Request) string

// ByClientIP buckets requests by caller address.
func ByClientIP(r *http.Request) string {
	return "ip:" + extractClientIP(r)
}

// ByPathValue buckets requests by a route wildcard such as a connection id.
func ByPathValue(name string) KeyFunc {
	return func(r *http.Request) string {
		return name + ":" + r.PathValue(name)
	}
}

// RateLimit returns middleware allowing at most limit requests per window
// for each bucket. Limiter errors fail open.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := "api:" + key(r)
			allowed, err := limiter.Allow(r.Context(), bucket, limit, window)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("bucket", bucket),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(window.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP attempts to determine the real client IP from standard
// proxy headers, falling back to the direct remote address.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		if ip = strings.TrimSpace(ip); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
