package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig bounds requests per client over a sliding window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Key identifies the client. Defaults to ClientKey.
	Key func(*http.Request) string
}

// ClientKey identifies callers by API key when they send one, by address
// otherwise.
func ClientKey(r *http.Request) string {
	if key := r.Header.Get("api_key"); key != "" {
		return "key:" + key
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// counter approximates a sliding window from two fixed windows: the previous
// window's count is weighted by how much of it still overlaps.
type counter struct {
	start      time.Time
	prev, curr float64
}

func (c *counter) take(now time.Time, window time.Duration, max int) (remaining int, reset time.Time, ok bool) {
	if elapsed := now.Sub(c.start); elapsed >= window {
		c.prev = c.curr
		if elapsed >= 2*window {
			c.prev = 0
		}
		c.curr = 0
		c.start = now.Truncate(window)
	}

	weight := 1 - float64(now.Sub(c.start))/float64(window)
	used := c.prev*max0(weight) + c.curr
	reset = c.start.Add(window)
	if used >= float64(max) {
		return 0, reset, false
	}
	c.curr++
	return int(math.Max(0, float64(max)-used-1)), reset, true
}

func max0(v float64) float64 { return math.Max(0, v) }

type limiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	counters map[string]*counter
}

func (l *limiter) take(key string, now time.Time) (int, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[key]
	if !ok {
		c = &counter{start: now}
		l.counters[key] = c
	}
	return c.take(now, l.cfg.Window, l.cfg.Max)
}

// evict drops clients idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Key == nil {
		cfg.Key = ClientKey
	}
	return &limiter{cfg: cfg, counters: map[string]*counter{}}
}

// RateLimit rejects clients over the limit with 429. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset. Idle
// clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.take(l.cfg.Key(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
