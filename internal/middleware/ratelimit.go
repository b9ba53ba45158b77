// Package middleware holds the HTTP wrappers in front of the collector API:
// per-client rate limiting for the push endpoint and request logging.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter caps requests per client IP over a one-minute window. The push
// endpoint is open to every log shipper on the network, so a runaway or
// hostile shipper must not be able to flood the ingest path.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   int
	logger  *slog.Logger
}

type rateWindow struct {
	count int
	start time.Time
}

// NewRateLimiter builds a limiter allowing perMinute requests per client.
// Zero or negative means 600, generous enough for a busy shipper.
func NewRateLimiter(perMinute int, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   perMinute,
		logger:  logger.With("component", "ratelimit"),
	}
	go rl.sweep()
	return rl
}

// Allow reports whether another request from key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) > time.Minute {
		rl.windows[key] = &rateWindow{count: 1, start: now}
		return true
	}
	w.count++
	return w.count <= rl.limit
}

// Wrap enforces the limit, keyed by the client address.
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.Allow(key) {
			rl.logger.Warn("client rate limited", "client", key)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"status":"error","detail":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep drops stale windows so idle clients do not accumulate.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, w := range rl.windows {
			if now.Sub(w.start) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
