package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests: 60,
		Window:      time.Minute,
		KeyPrefix:   "ratelimit:api",
	}
}

// RateLimit counts requests per client IP in fixed Redis windows.
func RateLimit(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.Context()
		key := config.KeyPrefix + ":" + c.IP()

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			logger.Error("rate limit redis error", zap.Error(err))
			// Fail open: allow request if Redis is unavailable
			return c.Next()
		}
		if count == 1 {
			redisClient.Expire(ctx, key, config.Window)
		}

		remaining := config.MaxRequests - int(count)
		c.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, remaining)))

		if count > int64(config.MaxRequests) {
			if ttl, err := redisClient.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())+1))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		return c.Next()
	}
}
