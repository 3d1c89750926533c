package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Sessions       *handlers.SessionsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	OpsKeys        *auth.OpsKeyVerifier
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	v1 := app.Group("/v1")

	tickets := v1.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", auth.RequireAnyRole(), cfg.Tickets.CreateTicket)
	tickets.Get("/:id", auth.RequireAnyRole(), cfg.Tickets.GetTicket)
	tickets.Post("/:id/assign", auth.RequireAgent(), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/status", auth.RequireAgent(), cfg.Tickets.TransitionTicket)
	tickets.Post("/:id/close", auth.RequireAgent(), cfg.Tickets.CloseTicket)
	tickets.Get("/:id/events", auth.RequireAgent(), cfg.Tickets.ListTicketEvents)

	sessions := v1.Group("/sessions", cfg.AuthMiddleware.Handle, auth.RequireAgent())
	sessions.Post("", cfg.Sessions.StartSession)
	sessions.Post("/end", cfg.Sessions.EndSession)
	sessions.Post("/heartbeat", cfg.Sessions.Heartbeat)

	agents := v1.Group("/agents", cfg.AuthMiddleware.Handle, auth.RequireAgent())
	agents.Get("/:id", cfg.Sessions.GetAgent)
	agents.Get("/:id/events", cfg.Sessions.ListAgentEvents)

	admin := v1.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Put("/agents/:id", cfg.Admin.UpsertAgent)

	v1.Post("/ops/sweep", cfg.AuthMiddleware.OpsAccess(cfg.OpsKeys), cfg.Admin.Sweep)
}
