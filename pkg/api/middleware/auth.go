package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

// Auth enforces a single shared API key when one is configured. The key
// is accepted either as "Authorization: Bearer <key>" or in the
// X-API-Key header. An empty configured key disables enforcement.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if presented == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				logger.Warn(r.Context(), "auth rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"missing or invalid API key"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
