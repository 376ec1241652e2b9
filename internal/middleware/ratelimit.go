package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/response"
)

// RateLimiter tracks request counts per client key.
type RateLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int           // max requests per window
	window   time.Duration // time window
	done     chan struct{}
	stopOnce sync.Once
}

type requestInfo struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a new RateLimiter. Call Stop to end its cleanup
// goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// cleanup periodically removes expired entries.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, info := range rl.requests {
				if now.After(info.resetTime) {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow reports whether another request for key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	info, exists := rl.requests[key]

	if !exists || now.After(info.resetTime) {
		rl.requests[key] = &requestInfo{
			count:     1,
			resetTime: now.Add(rl.window),
		}
		return true
	}

	if info.count >= rl.limit {
		return false
	}

	info.count++
	return true
}

// clientKey identifies the caller by session cookie, or by IP without one.
func clientKey(c echo.Context) string {
	if cookie, err := c.Cookie("session_id"); err == nil && cookie.Value != "" {
		return "session:" + cookie.Value
	}
	return "ip:" + c.RealIP()
}

// RateLimitMiddleware returns a middleware that rejects callers exceeding
// the limiter's budget.
func RateLimitMiddleware(limiter *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow(clientKey(c)) {
				return response.Error(c, http.StatusTooManyRequests, "リクエストが多すぎます。しばらく待ってから再試行してください。")
			}

			return next(c)
		}
	}
}
