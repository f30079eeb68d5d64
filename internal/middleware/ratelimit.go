package middleware

import (
	"net/http"

	"github.com/patrickwarner/portalads/internal/geoip"
	"github.com/patrickwarner/portalads/internal/ratelimit"
)

// RateLimitByIP rejects requests with 429 once the client address has used up
// its token bucket.
func RateLimitByIP(limiter *ratelimit.KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "unknown"
			if ip := geoip.ClientIP(r); ip != nil {
				key = ip.String()
			}
			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
