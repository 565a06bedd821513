package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/gift-exchange/internal/api/http/handlers"
	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Pages          *handlers.PagesHandler
	AuthMiddleware *auth.Middleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Page navigations are registered last so
// that every other route takes precedence over the catch-all.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth", cfg.AuthMiddleware.Session())
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/google", cfg.Auth.Google)
	authGroup.Get("/google/login", cfg.Auth.GoogleLogin)
	authGroup.Get("/google/callback", cfg.Auth.GoogleCallback)
	authGroup.Get("/session", cfg.Auth.Session)
	authGroup.Patch("/session", cfg.Auth.UpdateSession)
	authGroup.Post("/signout", cfg.Auth.SignOut)

	app.Get("/*", cfg.AuthMiddleware.Session(), cfg.AuthMiddleware.Guard(), cfg.Pages.Render)
}
