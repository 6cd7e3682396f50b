package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prizzzz/leaseIQ/pkg/logger"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// ByTenant counts authenticated requests per tenant, falling back to the
// client address. It must run after AuthMiddleware.
func ByTenant(c *gin.Context) string {
	if tenant := GetTenant(c); tenant != "" {
		return "tenant:" + tenant
	}
	return ByClientIP(c)
}

// RateLimiter is a fixed-window counter shared by every key.
type RateLimiter struct {
	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time
	rate        int           // requests per window
	window      time.Duration // time window
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:      make(map[string]int),
		windowStart: time.Now(),
		rate:        rate,
		window:      window,
		now:         time.Now,
	}
}

// Allow counts one request for key. When the key is over its limit it
// returns false and the time left until the window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.counts = make(map[string]int)
		l.windowStart = now
	}

	if l.counts[key] >= l.rate {
		return false, l.window - now.Sub(l.windowStart)
	}
	l.counts[key]++
	return true, 0
}

// RateLimit rejects requests over rate per window with 429 and Retry-After.
func RateLimit(rate int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		k := key(c)
		ok, retryAfter := limiter.Allow(k)
		if !ok {
			logger.Warn(c.Request.Context(), "rate limit exceeded", "key", k, "path", c.Request.URL.Path)

			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
