package middleware

import (
	"net"
	"net/http"

	"github.com/sreerevanth/behaviorlens/pkg/infra/ratelimit"
)

// RateLimit rejects requests over the per-client budget with 429. The
// key is the client IP; behind a reverse proxy the X-Real-IP header
// wins when present.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Real-IP")
			if key == "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				} else {
					key = r.RemoteAddr
				}
			}
			if key == "" {
				key = "unknown"
			}

			allowed, err := limiter.Allow(key)
			if err != nil || !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
