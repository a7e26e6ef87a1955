package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/ratelimit"
)

// RateLimit enforces a per-user requests-per-minute cap. Runs after
// Authenticate so the key is the user id; unauthenticated paths are not
// rate limited here. Limiter failures fail open.
func RateLimit(limiter ratelimit.Limiter, rpm int, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), "ratelimit:"+userID.String(), rpm, time.Minute)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{
						"message": "rate limit exceeded",
						"type":    "rate_limited",
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
