package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/api/http/handlers"
	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Staff          *handlers.StaffHandler
	Chat           *handlers.ChatHandler
	Inbox          *handlers.InboxHandler
	Tickets        *handlers.TicketsHandler
	Requests       *handlers.RequestsHandler
	Storage        *handlers.StorageHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	app.Get("/storage/v1/object/public/:bucket/*", cfg.Storage.Object)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Get("/session", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Users.Session)

	// groups are keyed by prefix so each middleware chain only sees its own routes
	customerOnly := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireUser()}

	chat := app.Group("/chat", customerOnly...)
	chat.Get("/messages", cfg.Chat.ListMessages)
	chat.Post("/messages", cfg.Chat.SendMessage)
	chat.Post("/images", cfg.Chat.SendImage)
	chat.Post("/attachments", cfg.Chat.UploadAttachment)

	support := app.Group("/support", customerOnly...)
	support.Post("/tickets", cfg.Tickets.CreateTicket)
	support.Get("/tickets", cfg.Tickets.ListTickets)

	requests := app.Group("/requests", customerOnly...)
	requests.Post("/:kind", cfg.Requests.Submit)
	requests.Get("/:kind", cfg.Requests.List)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	admin.Get("/conversations", cfg.Inbox.ListConversations)
	admin.Get("/conversations/:userId/messages", cfg.Inbox.ListMessages)
	admin.Post("/conversations/:userId/messages", cfg.Inbox.Reply)
	admin.Post("/requests/:kind/:id/review", cfg.Requests.Review)
}
