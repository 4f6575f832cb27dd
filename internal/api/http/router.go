package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-automation/internal/api/http/handlers"
	"github.com/spec-kit/ticket-automation/internal/auth"
	"github.com/spec-kit/ticket-automation/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Agents         *handlers.AgentsHandler
	Tickets        *handlers.TicketsHandler
	AgentTickets   *handlers.AgentTicketsHandler
	Rules          *handlers.RulesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/agents/login", cfg.Agents.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)

	agentTickets := app.Group("/agent/tickets", cfg.AuthMiddleware.Handle, auth.RequireAgentRole())
	agentTickets.Get("", cfg.AgentTickets.ListTickets)
	agentTickets.Get("/:id", cfg.AgentTickets.GetTicket)
	agentTickets.Post("/:id/replies", cfg.AgentTickets.AddReply)
	agentTickets.Patch("/:id/status", cfg.AgentTickets.UpdateStatus)
	agentTickets.Patch("/:id/priority", cfg.AgentTickets.UpdatePriority)
	agentTickets.Post("/:id/assign", cfg.AgentTickets.Assign)
	agentTickets.Get("/:id/activities", cfg.AgentTickets.ListActivities)

	rules := app.Group("/admin/rules", cfg.AuthMiddleware.Handle, auth.RequireAgentRole(domain.AgentRoleAdmin))
	rules.Post("", cfg.Rules.CreateRule)
	rules.Get("", cfg.Rules.ListRules)
	rules.Get("/:id", cfg.Rules.GetRule)
	rules.Put("/:id", cfg.Rules.UpdateRule)
	rules.Delete("/:id", cfg.Rules.DeleteRule)
}
