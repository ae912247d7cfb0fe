package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/templui/cloudbox/internal/cache"
)

// RateLimit allows limit requests per client IP in each fixed window. Counters live
// in BadgerDB, so they survive restarts when the store is on disk. A limit of zero
// disables the check.
func RateLimit(counter *cache.Counter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			bucket := time.Now().UnixNano() / int64(window)
			key := fmt.Sprintf("rl:%s:%d", ip, bucket)

			count, err := counter.Incr(key, window)
			if err != nil {
				// Fail open: a broken counter must not take the API down
				slog.Error("rate limit counter failed", "ip", ip, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > uint64(limit) {
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(window.Seconds()))))
				jsonError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts real client IP from request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take first IP in list
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
