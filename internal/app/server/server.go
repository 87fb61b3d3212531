package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/clicktrail/internal/app/command"
	"github.com/sifan077/clicktrail/internal/app/service"
	inthttp "github.com/sifan077/clicktrail/internal/http/handler"
	"github.com/sifan077/clicktrail/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server needs.
type Dependencies struct {
	Logger     *zap.Logger
	Resolver   *service.Resolver
	Dispatcher *command.Dispatcher
	// Redis enables per-IP rate limiting of /api when set.
	Redis     *redis.Client
	RateLimit middleware.RateLimitConfig
	Checks    []inthttp.HealthCheck
	// ProxyHeader names the header holding the client IP behind a proxy.
	ProxyHeader string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates the HTTP server with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "clicktrail",
		ProxyHeader:           deps.ProxyHeader,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:   s.deps.Logger,
		Resolver: s.deps.Resolver,
		Checks:   s.deps.Checks,
	})
	redirectHandler.Register(s.app)

	api := s.app.Group("/api")
	if s.deps.Redis != nil {
		api.Use(middleware.RateLimit(s.deps.Redis, s.deps.RateLimit, s.deps.Logger))
	}
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:     s.deps.Logger,
		Dispatcher: s.deps.Dispatcher,
	})
	apiHandler.Register(api)
}
