package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// bucketTTL is how long an idle bucket survives before eviction.
	bucketTTL = 10 * time.Minute
	// gcEvery triggers the opportunistic sweep after this many lookups.
	gcEvery = 5000
)

// keyFunc maps a request to the identity string that owns its token bucket.
// The returned key must be stable for the duration of the request.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the X-User-Email header (the deployment's
// stand-in for authentication) and falls back to the client IP for anonymous
// traffic. Keys are namespaced so "user:" and "ip:" never collide.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if email := c.GetHeader("X-User-Email"); email != "" {
			return "user:" + email
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-identity token buckets backed by
// golang.org/x/time/rate. Buckets are created on demand in a mutex-guarded
// map; idle ones are swept during lookups so memory stays bounded without a
// background goroutine.
//
// The limiter is process-local. Horizontally scaled deployments that need a
// global limit want a shared store (Redis or similar) instead.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	lookups uint64
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with the
// given burst capacity, keyed by keyFn. A burst of zero or less is coerced to
// 1 so a freshly created bucket can always admit one request.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		ttl:     bucketTTL,
	}
}

// bucketFor fetches or creates the bucket for key, refreshing its lastSeen.
// The idle sweep runs before the requested key is touched, so a bucket that
// went stale is evicted even when it is the one being asked for.
func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= gcEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Handler is the Gin middleware. Requests that exhaust their bucket get a
// 429 with the API's JSON string body and a minimal Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.bucketFor(rl.keyFn(c)).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
