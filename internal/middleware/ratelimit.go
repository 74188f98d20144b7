package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware limits requests per path and client. With a redis
// client the window is shared between instances (fixed window, fail open);
// without one each instance keeps its own token buckets.
func RateLimitMiddleware(rdb redis.UniversalClient, limit int, window time.Duration) fiber.Handler {
	if rdb == nil {
		return localRateLimit(limit, window)
	}
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Path(), clientKey(c))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next() // fail open
		}

		if count == 1 {
			rdb.Expire(ctx, key, window)
		}

		if count > int64(limit) {
			return tooManyRequests(c)
		}

		return c.Next()
	}
}

func localRateLimit(limit int, window time.Duration) fiber.Handler {
	every := rate.Every(window / time.Duration(limit))
	buckets := xsync.NewMapOf[string, *rate.Limiter]()
	return func(c *fiber.Ctx) error {
		lim, _ := buckets.LoadOrCompute(c.Path()+"|"+clientKey(c), func() *rate.Limiter {
			return rate.NewLimiter(every, limit)
		})
		if !lim.Allow() {
			return tooManyRequests(c)
		}
		return c.Next()
	}
}

// clientKey prefers the authenticated user over the address.
func clientKey(c *fiber.Ctx) string {
	if id := GetUserID(c); id != "" {
		return "u:" + id
	}
	return c.IP()
}

func tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "rate limit exceeded",
	})
}
