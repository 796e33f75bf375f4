package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByCustomerOrIP keys by customer id when the request names one and by
// client IP otherwise. The prefixes keep the two spaces apart.
func KeyByCustomerOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id, ok := customerFromContext(c); ok {
			return "customer:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures the edge limiter.
type RateLimitOptions struct {
	RPS   float64
	Burst int // values < 1 become 1
	Key   KeyFunc
	// SkipPrefixes are never limited. Provider webhooks go here: a dropped
	// callback costs a settled payment.
	SkipPrefixes []string
	// IdleTTL evicts buckets unused for this long (default 10m).
	IdleTTL time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is an in-process token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter; install it with Handler.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByCustomerOrIP()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{opts: opts, now: time.Now, buckets: make(map[string]*bucket)}
}

// limiter returns the bucket for key. Idle buckets are swept at most once
// per IdleTTL, before the lookup, so a stale bucket is replaced rather than
// revived.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.opts.IdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports how many buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler rejects requests over the limit with 429 and a Retry-After
// computed from the bucket's refill time. Idempotent replays and skipped
// prefixes pass without drawing a token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || hasAnyPrefix(c.Request.URL.Path, rl.opts.SkipPrefixes) {
			c.Next()
			return
		}
		now := rl.now()
		r := rl.limiter(rl.opts.Key(c)).ReserveN(now, 1)
		if !r.OK() {
			rl.reject(c, time.Second)
			return
		}
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			rl.reject(c, d)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, wait time.Duration) {
	httpRejected.WithLabelValues("rate_limited").Inc()
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "too_many_requests",
		"message":    "rate limit exceeded",
	})
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}
