package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused per-client limiter is kept.
const idleLimiterTTL = time.Hour

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client with one token bucket each. The
// client is the authenticated user id, or the client IP for anonymous
// requests.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastPurge time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per client on average with bursts
// of up to burst.
//
// Go Learning Note — golang.org/x/time/rate:
// rate.Limiter is a token bucket: it refills at limit tokens per second up to
// burst, and Allow takes one token if one is available. rate.Every converts
// "one event per interval" into that per-second limit.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		now:      time.Now,
	}
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Allow reports whether client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	now := rl.now()
	entry, ok := rl.limiters[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	if now.Sub(rl.lastPurge) >= time.Minute {
		rl.purgeIdle(now)
		rl.lastPurge = now
	}
	rl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// purgeIdle drops limiters unused for idleLimiterTTL. The caller holds mu.
func (rl *RateLimiter) purgeIdle(now time.Time) {
	threshold := now.Add(-idleLimiterTTL)
	for client, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, client)
		}
	}
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := GetUserID(c)
		if client == "" {
			client = c.ClientIP()
		}
		if !rl.Allow(client) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many submissions, slow down"})
			return
		}
		c.Next()
	}
}
