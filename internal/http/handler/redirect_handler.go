package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/clicktrail/internal/app/service"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency for the /health endpoint.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger   *zap.Logger
	Resolver *service.Resolver
	Checks   []HealthCheck
}

// RedirectHandler serves short links and the health probe.
type RedirectHandler struct {
	logger   *zap.Logger
	resolver *service.Resolver
	checks   []HealthCheck
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:   logger,
		resolver: deps.Resolver,
		checks:   deps.Checks,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/r/:token", h.Redirect)
}

// Health reports the service status and the state of each dependency.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(userContext(c), healthTimeout)
	defer cancel()

	status := "ok"
	code := fiber.StatusOK
	deps := fiber.Map{}
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			deps[check.Name] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
			continue
		}
		deps[check.Name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"service":      "clicktrail",
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// Redirect handles GET /r/:token. Suppressed hits still redirect.
func (h *RedirectHandler) Redirect(c *fiber.Ctx) error {
	token := c.Params("token")

	res, err := h.resolver.Resolve(userContext(c), token, service.Requester{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Referer:   c.Get(fiber.HeaderReferer),
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		}
		h.logger.Error("failed to resolve token", zap.Error(err), zap.String("token", token))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	h.logger.Debug("redirecting short link",
		zap.String("token", token),
		zap.String("target", res.TargetURL),
		zap.Bool("recorded", res.Recorded),
	)
	return c.Redirect(res.TargetURL, fiber.StatusFound)
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
