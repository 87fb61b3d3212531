package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Logger writes one access log line per request.
func Logger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
			zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if rid := requestID(c); rid != "" {
			fields = append(fields, zap.String("request_id", rid))
		}

		switch {
		case err != nil:
			logger.Error("request error", append(fields, zap.Error(err))...)
		case status >= fiber.StatusInternalServerError:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}

		return err
	}
}
