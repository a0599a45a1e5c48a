package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lifecycle-engine/internal/api/http/handlers"
	"github.com/spec-kit/lifecycle-engine/internal/auth"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Chat           *handlers.ChatHandler
	Scheduled      *handlers.ScheduledMessagesHandler
	Staff          *handlers.StaffHandler
	Hub            *realtime.Hub
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	staffOnly := auth.RequireStaff()
	staffOrAI := auth.RequireActor(domain.ActorStaff, domain.ActorAI)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", staffOrAI, cfg.Tickets.ListTickets)
	tickets.Post("/bulk-assign", staffOnly, cfg.Tickets.BulkAssign)
	tickets.Get("/:id", staffOrAI, cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.PostMessage)
	tickets.Put("/:id/status", staffOnly, cfg.Tickets.UpdateStatus)
	tickets.Put("/:id/assign", staffOnly, cfg.Tickets.Assign)
	tickets.Post("/:id/snooze", staffOnly, cfg.Tickets.Snooze)
	tickets.Post("/:id/unsnooze", staffOnly, cfg.Tickets.Unsnooze)
	tickets.Post("/:id/escalate", staffOnly, cfg.Tickets.Escalate)
	tickets.Post("/:id/resolve-escalation", staffOnly, cfg.Tickets.ResolveEscalation)
	tickets.Post("/:id/schedule-reply", staffOnly, cfg.Tickets.ScheduleReply)
	tickets.Get("/:id/scheduled-messages", staffOrAI, cfg.Tickets.ListScheduled)
	tickets.Post("/:id/merge", staffOnly, cfg.Tickets.Merge)

	chat := api.Group("/chat/conversation")
	chat.Get("/:id", staffOrAI, cfg.Chat.GetConversation)
	chat.Post("/:id/messages", cfg.Tickets.PostMessage)
	chat.Post("/:id/queue", staffOrAI, cfg.Chat.Queue)
	chat.Post("/:id/takeover", staffOnly, cfg.Chat.Takeover)
	chat.Post("/:id/pickup", staffOnly, cfg.Chat.Pickup)
	chat.Post("/:id/reassign", staffOrAI, cfg.Chat.Reassign)
	chat.Post("/:id/close", auth.RequireActor(domain.ActorStaff, domain.ActorAI, domain.ActorSystem), cfg.Chat.Close)
	chat.Post("/:id/escalate", staffOnly, cfg.Tickets.Escalate)
	chat.Post("/:id/resolve-escalation", staffOnly, cfg.Tickets.ResolveEscalation)

	api.Put("/scheduled-messages/:id", staffOnly, cfg.Scheduled.Update)
	api.Delete("/scheduled-messages/:id", staffOnly, cfg.Scheduled.Cancel)

	api.Get("/snooze-presets", staffOnly, cfg.Tickets.SnoozePresets)
	api.Get("/mentions", staffOnly, cfg.Tickets.Mentions)

	staff := api.Group("/staff", staffOnly)
	staff.Get("/", cfg.Staff.ListStaff)
	staff.Get("/:id", cfg.Staff.GetStaff)
	staff.Put("/:id", auth.RequireStaffRole(domain.StaffRoleAdmin), cfg.Staff.PutStaff)

	api.Get("/stream", staffOnly, cfg.Hub.Upgrade, cfg.Hub.Handler())
}
