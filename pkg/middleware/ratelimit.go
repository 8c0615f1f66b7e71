package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"democrm-backend/pkg/utils"
)

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitByIP 按客户端IP限流。limiter 为 nil 时不限流；后端出错时放行。
func RateLimitByIP(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + ":" + r.URL.Path
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				fmt.Printf("⚠️  Rate limiter unavailable, allowing request: %v\n", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "60")
				utils.WriteErrorResponseWithCode(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests, try again later", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP having already rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
