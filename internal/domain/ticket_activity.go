package domain

import "time"

// ActivityAction captures what a ticket activity entry records.
type ActivityAction string

const (
	ActivityStatusChanged   ActivityAction = "status_changed"
	ActivityPriorityChanged ActivityAction = "priority_changed"
	ActivityAssigned        ActivityAction = "assigned"
	ActivityTagAdded        ActivityAction = "tag_added"
	ActivityReplied         ActivityAction = "replied"
	ActivityNotified        ActivityAction = "notified"
)

// TicketActivity is an append-only audit entry. ActorID is nil and
// ActorType empty when the change was applied by an automation rule rather
// than a person; otherwise ActorType names the table ActorID points into.
type TicketActivity struct {
	ID        string
	TicketID  string
	ActorID   *string
	ActorType SubjectType
	Action    ActivityAction
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}
