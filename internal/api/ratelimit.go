package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter tracks request counts per client IP over a fixed window.
// Preflight and health-check requests never consume budget.
type RateLimiter struct {
	max      int
	duration time.Duration

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time

	now func() time.Time
}

func NewRateLimiter(max int, duration time.Duration) *RateLimiter {
	return &RateLimiter{
		max:      max,
		duration: duration,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// take consumes one unit of budget for key and reports whether the request
// is allowed, how much budget remains and when the window resets.
func (l *RateLimiter) take(key string) (allowed bool, remaining int, reset time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Drop windows that expired a full period ago so the map does not grow
	// with one entry per IP forever.
	if now.Sub(l.lastSweep) > l.duration {
		for k, ww := range l.windows {
			if now.Sub(ww.start) >= l.duration {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.duration {
		w = &window{start: now}
		l.windows[key] = w
	}

	reset = w.start.Add(l.duration).Sub(now)
	if w.count >= l.max {
		return false, 0, reset
	}
	w.count++
	return true, l.max - w.count, reset
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, reset := l.take(clientIP(r))
		retryAfter := int(math.Ceil(reset.Seconds()))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errorResponse{
				Error:             "too many requests",
				Detail:            fmt.Sprintf("You're sending messages too quickly. Try again in %ds.", retryAfter),
				RetryAfterSeconds: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP trusts exactly one proxy hop: the rightmost X-Forwarded-For
// entry wins, otherwise the socket address host is used.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
