package dto

import (
	"time"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// CreateTicketRequest payload for POST /tickets.
type CreateTicketRequest struct {
	GroupID      *string               `json:"group_id,omitempty"`
	Subject      string                `json:"subject"`
	Description  string                `json:"description"`
	Priority     domain.TicketPriority `json:"priority,omitempty"`
	Tags         []string              `json:"tags,omitempty"`
	CustomFields map[string]any        `json:"custom_fields,omitempty"`
}

// CreateReplyRequest payload for POST /tickets/:id/replies.
type CreateReplyRequest struct {
	Body string `json:"body"`
}

// UpdateStatusRequest payload for agent status changes.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload for agent priority changes.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload for agent assignment.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// TicketSummary is the list representation of a ticket.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	GroupID     *string               `json:"group_id,omitempty"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Subject     string                `json:"subject"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Tags        []string              `json:"tags,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse is the single-ticket representation.
type TicketDetailResponse struct {
	ID              string                  `json:"id"`
	ExternalKey     string                  `json:"external_key"`
	GroupID         *string                 `json:"group_id,omitempty"`
	AssigneeID      *string                 `json:"assignee_id,omitempty"`
	Subject         string                  `json:"subject"`
	Description     string                  `json:"description"`
	Status          domain.TicketStatus     `json:"status"`
	Priority        domain.TicketPriority   `json:"priority"`
	Tags            []string                `json:"tags,omitempty"`
	CustomFields    map[string]any          `json:"custom_fields,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	StatusChangedAt time.Time               `json:"status_changed_at"`
	ClosedAt        *time.Time              `json:"closed_at,omitempty"`
	Messages        []TicketMessageResponse `json:"messages,omitempty"`
}

// TicketMessageResponse represents one reply.
type TicketMessageResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id,omitempty"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// TicketActivityResponse represents one audit entry.
type TicketActivityResponse struct {
	ID        string                `json:"id"`
	ActorID   *string               `json:"actor_id,omitempty"`
	ActorType domain.SubjectType    `json:"actor_type,omitempty"`
	Action    domain.ActivityAction `json:"action"`
	OldValue  string                `json:"old_value,omitempty"`
	NewValue  string                `json:"new_value,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}
