package automation

import (
	"fmt"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// ConditionError reports a condition that could not be evaluated (unknown
// field or operator, type mismatch). The condition resolves to false and
// sibling conditions are still evaluated.
type ConditionError struct {
	Field    string
	Operator domain.ConditionOperator
	Reason   string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %s %s: %s", e.Field, e.Operator, e.Reason)
}

// ActionError reports an action that could not be applied (invalid target,
// unresolvable pool, unknown action type). The action is skipped and the
// remaining actions of the same rule still run.
type ActionError struct {
	Type   domain.ActionType
	Reason string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: %s", e.Type, e.Reason)
}
