package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the fiber Locals key holding the request id.
	RequestIDKey = "request_id"
)

// RequestID propagates or generates a request id for each request
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(RequestIDHeader, rid)
		c.Locals(RequestIDKey, rid)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals(RequestIDKey).(string); ok {
		return rid
	}
	return ""
}
