package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/expertiza/review-eval-api/internal/config"
	"github.com/expertiza/review-eval-api/internal/handler"
	"github.com/expertiza/review-eval-api/internal/middleware"
	"github.com/expertiza/review-eval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ReviewHandler *handler.ReviewHandler
	JWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ReviewHandler != nil {
		reviews := api.Group("/reviews", jwtMiddleware, middleware.RateLimit("reviews", 60, time.Minute))
		deps.ReviewHandler.Register(reviews)

		evaluations := api.Group("/evaluations", jwtMiddleware, middleware.RateLimit("evaluations", 10, time.Minute))
		deps.ReviewHandler.RegisterEvaluations(evaluations)
	}
}
