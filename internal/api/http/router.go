package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdin71/supportflow-ai/internal/api/http/handlers"
	"github.com/Abdin71/supportflow-ai/internal/auth"
	"github.com/Abdin71/supportflow-ai/internal/domain"
)

// NewApp builds the fiber application. Request values are copied out of
// fiber's reusable buffers because handlers hand them to stores that keep
// them past the request.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	Suggestions    *handlers.SuggestionsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/assign", auth.RequireRole(domain.UserRoleAdmin), cfg.Tickets.Assign)
	tickets.Post("/:id/read", cfg.Tickets.MarkRead)
	tickets.Post("/:id/suggestions", cfg.Suggestions.Generate)

	tickets.Get("/:id/messages", cfg.Messages.List)
	tickets.Post("/:id/messages", cfg.Messages.Create)
	tickets.Patch("/:id/messages/:messageId", cfg.Messages.Update)
	tickets.Delete("/:id/messages/:messageId", auth.RequireRole(domain.UserRoleAdmin), cfg.Messages.Delete)
}
