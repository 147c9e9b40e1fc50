package serverutils

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"tourbook-chat/internal/pkg/metrics"
)

// UserRateLimiter keeps one token bucket per user. Buckets of users that went
// quiet expire with the cache entry.
type UserRateLimiter struct {
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
}

func NewUserRateLimiter(perSecond float64, burst int, idle time.Duration) *UserRateLimiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &UserRateLimiter{
		buckets: cache.New(idle, 2*idle),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *UserRateLimiter) Allow(userID string) bool {
	var limiter *rate.Limiter
	if v, ok := l.buckets.Get(userID); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
		// Add loses the race to a concurrent request; use the winner's bucket
		if err := l.buckets.Add(userID, limiter, cache.DefaultExpiration); err != nil {
			if v, ok := l.buckets.Get(userID); ok {
				limiter = v.(*rate.Limiter)
			}
		}
	}
	// touch so active users keep their bucket
	l.buckets.SetDefault(userID, limiter)
	return limiter.Allow()
}

// RateLimitByUser answers 429 once the caller's bucket is empty. It runs
// after JwtMiddleware; a nil limiter lets every request through.
func RateLimitByUser(l *UserRateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Next()
		}
		if !l.Allow(userID) {
			metrics.SendsRateLimited.Inc()
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many messages, slow down")
		}
		return c.Next()
	}
}
