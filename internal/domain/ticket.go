package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for support requests. One snapshot is produced per
// mutating request, threaded through the automation engine, and persisted by
// the caller once the engine returns.
type Ticket struct {
	ID              string
	ExternalKey     string
	RequesterID     string
	GroupID         *string
	AssigneeID      *string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	Tags            []string
	CustomFields    map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
	ClosedAt        *time.Time
}

// Clone returns a deep copy so the engine can mutate a snapshot without
// aliasing slices or maps with the caller's ticket.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	copied := *t
	if t.GroupID != nil {
		groupID := *t.GroupID
		copied.GroupID = &groupID
	}
	if t.AssigneeID != nil {
		assigneeID := *t.AssigneeID
		copied.AssigneeID = &assigneeID
	}
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		copied.ClosedAt = &closedAt
	}
	if t.Tags != nil {
		copied.Tags = append([]string(nil), t.Tags...)
	}
	if t.CustomFields != nil {
		copied.CustomFields = make(map[string]any, len(t.CustomFields))
		for k, v := range t.CustomFields {
			copied.CustomFields[k] = v
		}
	}
	return &copied
}

// HasTag reports whether the ticket already carries the tag.
func (t *Ticket) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// HoursInStatus returns whole hours elapsed since the last status change.
func (t *Ticket) HoursInStatus(now time.Time) int64 {
	if t.StatusChangedAt.IsZero() || now.Before(t.StatusChangedAt) {
		return 0
	}
	return int64(now.Sub(t.StatusChangedAt).Hours())
}

// DaysInStatus returns whole days elapsed since the last status change.
func (t *Ticket) DaysInStatus(now time.Time) int64 {
	return t.HoursInStatus(now) / 24
}
