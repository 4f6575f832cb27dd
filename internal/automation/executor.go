package automation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// AssigneeResolver resolves an assign action's target to an agent ID. The
// target is either an agent ID or the name of an assignment pool (group).
type AssigneeResolver interface {
	Resolve(ctx context.Context, target string, ticket *domain.Ticket) (string, error)
}

// NotificationPayload carries the ticket context for a notify action.
type NotificationPayload struct {
	TicketID    string `json:"ticket_id"`
	ExternalKey string `json:"external_key"`
	Subject     string `json:"subject"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Message     string `json:"message,omitempty"`
}

// Notifier delivers notify actions. Failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, target string, payload NotificationPayload) error
}

// AppliedAction records one successfully applied action with enough data to
// build a ticket activity entry.
type AppliedAction struct {
	Action   domain.ActivityAction
	OldValue string
	NewValue string
}

// Executor applies a rule's actions to a ticket snapshot. Actions run
// strictly in listed order; each observes the mutations of its predecessors.
// A single unsatisfiable action is skipped and logged, never aborting the
// rule or the dispatch.
type Executor struct {
	resolver AssigneeResolver
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor constructs an executor. Both collaborators may be nil, in
// which case assign and notify actions are skipped.
func NewExecutor(resolver AssigneeResolver, notifier Notifier, logger *zap.Logger) *Executor {
	return &Executor{resolver: resolver, notifier: notifier, logger: logger, now: time.Now}
}

// Apply returns a mutated copy of the ticket plus the applied-action log.
// Actions that turn out to be no-ops (value already current, duplicate tag)
// produce no log entry.
func (x *Executor) Apply(ctx context.Context, ticket *domain.Ticket, actions []domain.RuleAction) (*domain.Ticket, []AppliedAction) {
	working := ticket.Clone()
	applied := make([]AppliedAction, 0, len(actions))

	for _, action := range actions {
		entry, err := x.applyOne(ctx, working, action)
		if err != nil {
			x.logger.Warn("action skipped",
				zap.String("ticket_id", working.ID),
				zap.String("action_type", string(action.Type)),
				zap.Error(err))
			continue
		}
		if entry != nil {
			applied = append(applied, *entry)
		}
	}
	return working, applied
}

func (x *Executor) applyOne(ctx context.Context, ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	switch action.Type {
	case domain.ActionAssign:
		return x.applyAssign(ctx, ticket, action)
	case domain.ActionUpdateStatus:
		return x.applyStatus(ticket, action)
	case domain.ActionUpdatePriority:
		return x.applyPriority(ticket, action)
	case domain.ActionAddTag:
		return applyTag(ticket, action)
	case domain.ActionNotify:
		return x.applyNotify(ctx, ticket, action)
	default:
		return nil, &ActionError{Type: action.Type, Reason: "unknown action type"}
	}
}

func (x *Executor) applyAssign(ctx context.Context, ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	if x.resolver == nil {
		return nil, &ActionError{Type: action.Type, Reason: "no assignee resolver configured"}
	}
	if action.Target == "" {
		return nil, &ActionError{Type: action.Type, Reason: "empty target"}
	}
	agentID, err := x.resolver.Resolve(ctx, action.Target, ticket)
	if err != nil {
		return nil, &ActionError{Type: action.Type, Reason: err.Error()}
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == agentID {
		return nil, nil
	}
	old := ""
	if ticket.AssigneeID != nil {
		old = *ticket.AssigneeID
	}
	ticket.AssigneeID = &agentID
	return &AppliedAction{Action: domain.ActivityAssigned, OldValue: old, NewValue: agentID}, nil
}

var knownStatuses = map[domain.TicketStatus]bool{
	domain.TicketStatusOpen:        true,
	domain.TicketStatusInProgress:  true,
	domain.TicketStatusPendingUser: true,
	domain.TicketStatusResolved:    true,
	domain.TicketStatusClosed:      true,
	domain.TicketStatusCancelled:   true,
}

func (x *Executor) applyStatus(ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	next := domain.TicketStatus(action.Value)
	if !knownStatuses[next] {
		return nil, &ActionError{Type: action.Type, Reason: "unknown status " + action.Value}
	}
	if ticket.Status == next {
		return nil, nil
	}
	old := ticket.Status
	ticket.Status = next
	ticket.StatusChangedAt = x.now()
	if next == domain.TicketStatusClosed {
		closedAt := x.now()
		ticket.ClosedAt = &closedAt
	} else {
		ticket.ClosedAt = nil
	}
	return &AppliedAction{Action: domain.ActivityStatusChanged, OldValue: string(old), NewValue: string(next)}, nil
}

var knownPriorities = map[domain.TicketPriority]bool{
	domain.TicketPriorityLow:    true,
	domain.TicketPriorityMedium: true,
	domain.TicketPriorityHigh:   true,
	domain.TicketPriorityUrgent: true,
}

func (x *Executor) applyPriority(ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	next := domain.TicketPriority(action.Value)
	if !knownPriorities[next] {
		return nil, &ActionError{Type: action.Type, Reason: "unknown priority " + action.Value}
	}
	if ticket.Priority == next {
		return nil, nil
	}
	old := ticket.Priority
	ticket.Priority = next
	return &AppliedAction{Action: domain.ActivityPriorityChanged, OldValue: string(old), NewValue: string(next)}, nil
}

func applyTag(ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	if action.Value == "" {
		return nil, &ActionError{Type: action.Type, Reason: "empty tag"}
	}
	if ticket.HasTag(action.Value) {
		return nil, nil
	}
	ticket.Tags = append(ticket.Tags, action.Value)
	return &AppliedAction{Action: domain.ActivityTagAdded, NewValue: action.Value}, nil
}

func (x *Executor) applyNotify(ctx context.Context, ticket *domain.Ticket, action domain.RuleAction) (*AppliedAction, error) {
	if x.notifier == nil {
		return nil, &ActionError{Type: action.Type, Reason: "no notifier configured"}
	}
	if action.Target == "" {
		return nil, &ActionError{Type: action.Type, Reason: "empty target"}
	}
	payload := NotificationPayload{
		TicketID:    ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Subject:     ticket.Subject,
		Status:      string(ticket.Status),
		Priority:    string(ticket.Priority),
		Message:     action.Value,
	}
	if err := x.notifier.Notify(ctx, action.Target, payload); err != nil {
		// Fire-and-forget: a failed delivery still counts as applied.
		x.logger.Warn("notification delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("target", action.Target),
			zap.Error(err))
	}
	return &AppliedAction{Action: domain.ActivityNotified, NewValue: action.Target}, nil
}
