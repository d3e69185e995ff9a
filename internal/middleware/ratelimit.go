package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type visitor struct {
	count       int
	windowStart time.Time
}

// RateLimiter is a fixed-window limiter keyed by client host. It runs ahead
// of the session middleware so a rejected request never creates a session.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	// Cleanup goroutine
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-rl.stopChan:
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if rl.now().Sub(v.windowStart) > rl.window {
			delete(rl.visitors, key)
		}
	}
}

// allow records a hit for key and reports whether it is within the limit.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists || now.Sub(v.windowStart) > rl.window {
		rl.visitors[key] = &visitor{count: 1, windowStart: now}
		return true, 0
	}

	v.count++
	if v.count > rl.limit {
		return false, rl.window - now.Sub(v.windowStart)
	}
	return true, 0
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ok, retryAfter := rl.allow(clientHost(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientHost drops the port so every connection from one host shares a
// bucket. RealIP has already rewritten RemoteAddr behind a proxy.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
