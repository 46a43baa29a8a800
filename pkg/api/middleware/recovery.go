// Package middleware holds the HTTP middleware chain for the API
// server: recovery, logging, CORS, API-key auth and rate limiting.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sreerevanth/behaviorlens/pkg/infra/logger"
)

func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					stack := debug.Stack()

					var errMsg string
					if err, ok := rvr.(error); ok {
						errMsg = err.Error()
					} else {
						errMsg = fmt.Sprintf("%v", rvr)
					}

					logger.Error(r.Context(), "panic recovered",
						"error", errMsg,
						"stack", string(stack),
						"path", r.URL.Path,
						"method", r.Method)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)

					resp := map[string]any{
						"success": false,
						"error": map[string]any{
							"code":    "INTERNAL_ERROR",
							"message": "internal server error",
						},
					}
					_ = json.NewEncoder(w).Encode(resp)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
