package automation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// TrackerStore persists rule firing side effects. Failures here must never
// block or corrupt the ticket mutation that triggered the dispatch.
type TrackerStore interface {
	IncrementRuleExecution(ctx context.Context, ruleID string, executedAt time.Time) error
	AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error
}

// Tracker records rule firing metadata: exactly one execution-count
// increment per firing (not per action) and one ticket activity entry per
// applied action.
type Tracker struct {
	store  TrackerStore
	logger *zap.Logger
}

// NewTracker constructs a tracker.
func NewTracker(store TrackerStore, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// Record updates the rule's execution bookkeeping and appends activities.
// The rule struct is updated in memory as well so subsequent passes in the
// same dispatch see current counts. Storage errors are logged and swallowed.
func (t *Tracker) Record(ctx context.Context, rule *domain.AutomationRule, ticket *domain.Ticket, applied []AppliedAction, executedAt time.Time) {
	rule.ExecutionCount++
	rule.LastExecutedAt = &executedAt

	if err := t.store.IncrementRuleExecution(ctx, rule.ID, executedAt); err != nil {
		t.logger.Warn("failed to record rule execution",
			zap.String("rule_id", rule.ID),
			zap.Error(err))
	}

	for _, entry := range applied {
		activity := &domain.TicketActivity{
			TicketID:  ticket.ID,
			Action:    entry.Action,
			OldValue:  entry.OldValue,
			NewValue:  entry.NewValue,
			CreatedAt: executedAt,
		}
		if err := t.store.AppendTicketActivity(ctx, activity); err != nil {
			t.logger.Warn("failed to append ticket activity",
				zap.String("ticket_id", ticket.ID),
				zap.String("rule_id", rule.ID),
				zap.String("action", string(entry.Action)),
				zap.Error(err))
		}
	}
}
