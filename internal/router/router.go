package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/handler"
	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/observability"
)

// APIPrefix is the root of every versioned route.
const APIPrefix = "/api/v1"

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ClassHandler       *handler.ClassHandler
	AssignmentHandler  *handler.AssignmentHandler
	BatchHandler       *handler.BatchHandler
	BatchStreamHandler *handler.BatchStreamHandler
	DashboardHandler   *handler.DashboardHandler
	ActivityHandler    *handler.ActivityHandler
	HealthProbes       map[string]handler.HealthProbe
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group(APIPrefix, func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	protected := api.Group("", jwtMiddleware, middleware.RequireUser())

	classes := protected.Group("/classes")
	if deps.ClassHandler != nil {
		deps.ClassHandler.Register(classes)
	}

	assignments := protected.Group("/assignments")
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.RegisterClassRoutes(classes)
		deps.AssignmentHandler.Register(assignments)
	}

	batches := protected.Group("/batches")
	if deps.BatchStreamHandler != nil {
		deps.BatchStreamHandler.Register(batches)
	}
	if deps.BatchHandler != nil {
		deps.BatchHandler.RegisterAssignmentRoutes(assignments)
		deps.BatchHandler.Register(batches)
		deps.BatchHandler.RegisterResultRoutes(protected.Group("/results"))
	}

	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(protected.Group("/dashboard"))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(protected.Group("/activity"))
	}
}
