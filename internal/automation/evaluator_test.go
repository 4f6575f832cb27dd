package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

func testTicket() *domain.Ticket {
	groupID := "grp-1"
	return &domain.Ticket{
		ID:          "tck-1",
		ExternalKey: "TCK-ABC12345",
		RequesterID: "usr-1",
		GroupID:     &groupID,
		Subject:     "printer on fire",
		Status:      domain.TicketStatusOpen,
		Priority:    domain.TicketPriorityUrgent,
		Tags:        []string{"hardware", "office-2"},
		CustomFields: map[string]any{
			"region":     "emea",
			"escalation": float64(3),
		},
		CreatedAt:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		StatusChangedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newTestEvaluator() *Evaluator {
	e := NewEvaluator(zap.NewNop())
	// Fixed clock: 8 days after the ticket's last status change.
	e.now = func() time.Time {
		return time.Date(2024, 5, 9, 9, 0, 0, 0, time.UTC)
	}
	return e
}

func TestEvaluateOperators(t *testing.T) {
	evaluator := newTestEvaluator()
	ticket := testTicket()

	cases := []struct {
		name      string
		condition domain.RuleCondition
		want      bool
	}{
		{"equals status", domain.RuleCondition{Field: "status", Operator: domain.OperatorEquals, Value: "OPEN"}, true},
		{"equals status miss", domain.RuleCondition{Field: "status", Operator: domain.OperatorEquals, Value: "CLOSED"}, false},
		{"not_equals priority", domain.RuleCondition{Field: "priority", Operator: domain.OperatorNotEquals, Value: "LOW"}, true},
		{"contains tag", domain.RuleCondition{Field: "tags", Operator: domain.OperatorContains, Value: "hardware"}, true},
		{"contains tag miss", domain.RuleCondition{Field: "tags", Operator: domain.OperatorContains, Value: "software"}, false},
		{"contains substring", domain.RuleCondition{Field: "status", Operator: domain.OperatorContains, Value: "PE"}, true},
		{"gte days in status", domain.RuleCondition{Field: "days_in_status", Operator: domain.OperatorGTE, Value: float64(7)}, true},
		{"lt hours in status", domain.RuleCondition{Field: "hours_in_status", Operator: domain.OperatorLT, Value: float64(100)}, false},
		{"gt custom numeric", domain.RuleCondition{Field: "custom.escalation", Operator: domain.OperatorGT, Value: float64(2)}, true},
		{"lte custom numeric", domain.RuleCondition{Field: "custom.escalation", Operator: domain.OperatorLTE, Value: float64(2)}, false},
		{"equals custom string", domain.RuleCondition{Field: "custom.region", Operator: domain.OperatorEquals, Value: "emea"}, true},
		{"numeric value as string", domain.RuleCondition{Field: "custom.escalation", Operator: domain.OperatorGTE, Value: "3"}, true},
		{"equals group id", domain.RuleCondition{Field: "group_id", Operator: domain.OperatorEquals, Value: "grp-1"}, true},
		{"created_at lexical gte", domain.RuleCondition{Field: "created_at", Operator: domain.OperatorGTE, Value: "2024-01-01"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := evaluator.Evaluate(ticket, []domain.RuleCondition{tc.condition}, domain.MatchAll)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateMissingFieldIsFalse(t *testing.T) {
	evaluator := newTestEvaluator()
	ticket := testTicket()
	ticket.AssigneeID = nil

	cases := []domain.RuleCondition{
		{Field: "foo", Operator: domain.OperatorEquals, Value: "bar"},
		{Field: "assignee_id", Operator: domain.OperatorEquals, Value: "agt-1"},
		{Field: "custom.absent", Operator: domain.OperatorEquals, Value: "x"},
		// Even not_equals needs a present field to match.
		{Field: "foo", Operator: domain.OperatorNotEquals, Value: "bar"},
	}
	for _, condition := range cases {
		assert.False(t, evaluator.Evaluate(ticket, []domain.RuleCondition{condition}, domain.MatchAll), "field %s", condition.Field)
	}
}

func TestEvaluateTypeMismatchIsFalseNotFatal(t *testing.T) {
	evaluator := newTestEvaluator()
	ticket := testTicket()

	conditions := []domain.RuleCondition{
		{Field: "status", Operator: domain.OperatorGTE, Value: float64(5)},   // non-numeric field
		{Field: "tags", Operator: domain.OperatorGT, Value: float64(1)},      // slice vs number
		{Field: "status", Operator: "matches_regex", Value: "OP.*"},          // unknown operator
		{Field: "priority", Operator: domain.OperatorEquals, Value: "URGENT"}, // healthy sibling
	}

	// Broken conditions resolve false without aborting the healthy sibling.
	assert.False(t, evaluator.Evaluate(ticket, conditions, domain.MatchAll))
	assert.True(t, evaluator.Evaluate(ticket, conditions, domain.MatchAny))
}

func TestEvaluateCombinators(t *testing.T) {
	evaluator := newTestEvaluator()
	ticket := testTicket()

	satisfied := domain.RuleCondition{Field: "status", Operator: domain.OperatorEquals, Value: "OPEN"}
	unsatisfied := domain.RuleCondition{Field: "priority", Operator: domain.OperatorEquals, Value: "LOW"}

	assert.True(t, evaluator.Evaluate(ticket, []domain.RuleCondition{satisfied, satisfied}, domain.MatchAll))
	// Flipping exactly one satisfied condition must break an "all" rule.
	assert.False(t, evaluator.Evaluate(ticket, []domain.RuleCondition{satisfied, unsatisfied}, domain.MatchAll))
	// "any" still fires while one condition holds.
	assert.True(t, evaluator.Evaluate(ticket, []domain.RuleCondition{satisfied, unsatisfied}, domain.MatchAny))
	assert.False(t, evaluator.Evaluate(ticket, []domain.RuleCondition{unsatisfied, unsatisfied}, domain.MatchAny))
}

func TestEvaluateVacuousTruth(t *testing.T) {
	evaluator := newTestEvaluator()
	ticket := testTicket()

	// A rule with no conditions and "all" is a catch-all; with "any" it is
	// inert by design.
	assert.True(t, evaluator.Evaluate(ticket, nil, domain.MatchAll))
	assert.False(t, evaluator.Evaluate(ticket, nil, domain.MatchAny))
}
