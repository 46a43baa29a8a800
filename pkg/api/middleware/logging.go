package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Logging assigns every request an ID, stores it in the context and
// logs method, path, status and duration on completion.
func Logging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			ctx := logger.SetRequestID(r.Context(), requestID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Request-ID", requestID)

			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration", time.Since(start).String(),
				"remote_addr", r.RemoteAddr,
			}

			switch {
			case rw.statusCode >= 500:
				logger.Error(ctx, "http request", args...)
			case rw.statusCode >= 400:
				logger.Warn(ctx, "http request", args...)
			default:
				logger.Info(ctx, "http request", args...)
			}
		})
	}
}
