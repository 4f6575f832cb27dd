package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// Evaluator decides whether a rule's conditions hold for a ticket snapshot.
// Evaluation is pure: no I/O, no mutation; broken conditions are reported to
// the logger and resolve to false instead of aborting.
type Evaluator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger, now: time.Now}
}

// Evaluate applies the combinator over the condition list. "all" is
// vacuously true for an empty list (catch-all rule); "any" is vacuously
// false (misconfigured rule stays inert). Every condition is evaluated even
// once the outcome is decided, so each broken condition gets reported.
func (e *Evaluator) Evaluate(ticket *domain.Ticket, conditions []domain.RuleCondition, match domain.ConditionMatch) bool {
	anyMatched := false
	allMatched := true
	now := e.now()

	for _, condition := range conditions {
		ok, err := evaluateCondition(ticket, condition, now)
		if err != nil {
			e.logger.Warn("condition evaluation failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("field", condition.Field),
				zap.String("operator", string(condition.Operator)),
				zap.Error(err))
			ok = false
		}
		if ok {
			anyMatched = true
		} else {
			allMatched = false
		}
	}

	if match == domain.MatchAny {
		return anyMatched
	}
	return allMatched
}

func evaluateCondition(ticket *domain.Ticket, condition domain.RuleCondition, now time.Time) (bool, error) {
	fieldValue, ok := resolveField(ticket, condition.Field, now)
	if !ok {
		// Missing or unknown field is not an error, just a non-match.
		return false, nil
	}

	switch condition.Operator {
	case domain.OperatorEquals:
		return looselyEqual(fieldValue, condition.Value), nil
	case domain.OperatorNotEquals:
		return !looselyEqual(fieldValue, condition.Value), nil
	case domain.OperatorContains:
		return evaluateContains(fieldValue, condition)
	case domain.OperatorGTE, domain.OperatorLTE, domain.OperatorGT, domain.OperatorLT:
		return evaluateNumeric(fieldValue, condition)
	default:
		return false, &ConditionError{
			Field:    condition.Field,
			Operator: condition.Operator,
			Reason:   "unknown operator",
		}
	}
}

func evaluateContains(fieldValue any, condition domain.RuleCondition) (bool, error) {
	needle := stringify(condition.Value)
	switch v := fieldValue.(type) {
	case []string:
		for _, item := range v {
			if item == needle {
				return true, nil
			}
		}
		return false, nil
	case string:
		return strings.Contains(v, needle), nil
	default:
		return false, &ConditionError{
			Field:    condition.Field,
			Operator: condition.Operator,
			Reason:   fmt.Sprintf("contains not supported on %T", fieldValue),
		}
	}
}

func evaluateNumeric(fieldValue any, condition domain.RuleCondition) (bool, error) {
	left, okLeft := asNumber(fieldValue)
	right, okRight := asNumber(condition.Value)
	if !okLeft || !okRight {
		return false, &ConditionError{
			Field:    condition.Field,
			Operator: condition.Operator,
			Reason:   fmt.Sprintf("non-numeric comparison (%T vs %T)", fieldValue, condition.Value),
		}
	}

	switch condition.Operator {
	case domain.OperatorGTE:
		return left >= right, nil
	case domain.OperatorLTE:
		return left <= right, nil
	case domain.OperatorGT:
		return left > right, nil
	default:
		return left < right, nil
	}
}

// looselyEqual compares numerically when both sides are numbers and falls
// back to string equality, since rule payloads arrive as untyped JSON.
func looselyEqual(a, b any) bool {
	if left, ok := asNumber(a); ok {
		if right, ok := asNumber(b); ok {
			return left == right
		}
	}
	return stringify(a) == stringify(b)
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
