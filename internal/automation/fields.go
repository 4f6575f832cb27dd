package automation

import (
	"strings"
	"time"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// Condition field names form a closed set. Anything outside it resolves as
// missing, which makes the condition evaluate false.
const (
	fieldStatus       = "status"
	fieldPriority     = "priority"
	fieldAssigneeID   = "assignee_id"
	fieldGroupID      = "group_id"
	fieldTags         = "tags"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
	fieldHoursInState = "hours_in_status"
	fieldDaysInState  = "days_in_status"

	customFieldPrefix = "custom."
)

// KnownConditionField reports whether a field name belongs to the closed
// condition vocabulary. Used when validating rule definitions.
func KnownConditionField(field string) bool {
	if key, ok := strings.CutPrefix(field, customFieldPrefix); ok {
		return key != ""
	}
	switch field {
	case fieldStatus, fieldPriority, fieldAssigneeID, fieldGroupID, fieldTags,
		fieldCreatedAt, fieldUpdatedAt, fieldHoursInState, fieldDaysInState:
		return true
	}
	return false
}

// resolveField looks up a condition field on the ticket snapshot. The second
// return value is false when the field is unknown or has no value, e.g. an
// unassigned ticket's assignee_id.
func resolveField(ticket *domain.Ticket, field string, now time.Time) (any, bool) {
	if key, ok := strings.CutPrefix(field, customFieldPrefix); ok {
		value, found := ticket.CustomFields[key]
		return value, found
	}

	switch field {
	case fieldStatus:
		return string(ticket.Status), true
	case fieldPriority:
		return string(ticket.Priority), true
	case fieldAssigneeID:
		if ticket.AssigneeID == nil {
			return nil, false
		}
		return *ticket.AssigneeID, true
	case fieldGroupID:
		if ticket.GroupID == nil {
			return nil, false
		}
		return *ticket.GroupID, true
	case fieldTags:
		return ticket.Tags, true
	case fieldCreatedAt:
		return ticket.CreatedAt.UTC().Format(time.RFC3339), true
	case fieldUpdatedAt:
		return ticket.UpdatedAt.UTC().Format(time.RFC3339), true
	case fieldHoursInState:
		return ticket.HoursInStatus(now), true
	case fieldDaysInState:
		return ticket.DaysInStatus(now), true
	default:
		return nil, false
	}
}
