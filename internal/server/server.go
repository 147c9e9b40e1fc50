package server

import (
	"log"

	"tourbook-chat/internal/bootstrap"
	"tourbook-chat/internal/config"
	"tourbook-chat/internal/controller"
	"tourbook-chat/internal/pkg/metrics"
	"tourbook-chat/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(controller.ClassifySupportChatError))

	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	if cfg.App.MetricsEnabled {
		app.Get("/metrics",
			serverutils.JwtMiddleware(cfg.App.JWTSecret),
			serverutils.RequireRole(serverutils.RoleOperator),
			metrics.Handler(),
		)
	}

	api := app.Group("/api")

	c.SupportChannelHandler.RegisterRoutes(api)
	c.SupportChatController.RegisterRoutes(api)
	c.OperatorController.RegisterRoutes(api)
}
