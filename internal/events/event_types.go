package events

import (
	"time"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketReplied         EventType = "ticket_replied"
	EventRuleFired             EventType = "rule_fired"
)

// Actor encapsulates actor metadata for an event. Automation carries
// neither a user nor an agent.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	AgentID *string            `json:"agent_id,omitempty"`
}

// SystemActor is used for changes applied by automation rules.
func SystemActor() Actor {
	return Actor{Type: domain.SubjectTypeSystem}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	ExternalKey string                `json:"external_key"`
	GroupID     *string               `json:"group_id,omitempty"`
	Priority    domain.TicketPriority `json:"priority"`
	Subject     string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeAgentID *string `json:"assignee_agent_id,omitempty"`
	GroupID         *string `json:"group_id,omitempty"`
}

// TicketRepliedPayload payload.
type TicketRepliedPayload struct {
	MessageID   string                   `json:"message_id"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id,omitempty"`
	BodyPreview string                   `json:"body_preview"`
}

// RuleFiredPayload summarises one automation dispatch on a ticket.
type RuleFiredPayload struct {
	Event         string `json:"event"`
	RulesExecuted int    `json:"rules_executed"`
}
