package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// stubRuleSource serves a fixed rule list, optionally failing.
type stubRuleSource struct {
	rules []domain.AutomationRule
	err   error
}

func (s *stubRuleSource) ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matching []domain.AutomationRule
	for _, rule := range s.rules {
		if rule.RuleType == ruleType && rule.IsActive {
			matching = append(matching, rule)
		}
	}
	return matching, nil
}

// stubTrackerStore records executions and activities in memory.
type stubTrackerStore struct {
	mu         sync.Mutex
	executions map[string]int
	activities []domain.TicketActivity
	failAll    bool
}

func newStubTrackerStore() *stubTrackerStore {
	return &stubTrackerStore{executions: make(map[string]int)}
}

func (s *stubTrackerStore) IncrementRuleExecution(ctx context.Context, ruleID string, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("storage down")
	}
	s.executions[ruleID]++
	return nil
}

func (s *stubTrackerStore) AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("storage down")
	}
	s.activities = append(s.activities, *activity)
	return nil
}

func (s *stubTrackerStore) activityActions() []domain.ActivityAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]domain.ActivityAction, 0, len(s.activities))
	for _, activity := range s.activities {
		actions = append(actions, activity.Action)
	}
	return actions
}

func newTestEngine(rules RuleSource, store TrackerStore, resolver AssigneeResolver, limit int) *Engine {
	logger := zap.NewNop()
	return NewEngine(EngineDependencies{
		Rules:     rules,
		Evaluator: NewEvaluator(logger),
		Executor:  NewExecutor(resolver, &stubNotifier{}, logger),
		Tracker:   NewTracker(store, logger),
		Guard:     NewRecursionGuard(limit),
		Logger:    logger,
	})
}

func TestDispatchScenarioUrgentTicketAssigned(t *testing.T) {
	rules := &stubRuleSource{rules: []domain.AutomationRule{{
		ID:             "rule-1",
		Name:           "route urgent tickets",
		RuleType:       domain.RuleTypeTicketCreation,
		ConditionMatch: domain.MatchAll,
		Conditions: []domain.RuleCondition{
			{Field: "priority", Operator: domain.OperatorEquals, Value: "URGENT"},
		},
		Actions:  []domain.RuleAction{{Type: domain.ActionAssign, Target: "senior_agent_pool"}},
		IsActive: true,
	}}}
	store := newStubTrackerStore()
	resolver := &stubResolver{agents: map[string]string{"senior_agent_pool": "agt-9"}}
	engine := newTestEngine(rules, store, resolver, 2)

	ticket := testTicket()
	mutated, executed := engine.Dispatch(context.Background(), ticket, domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 1, executed)
	require.NotNil(t, mutated.AssigneeID)
	assert.Equal(t, "agt-9", *mutated.AssigneeID)
	assert.Equal(t, 1, store.executions["rule-1"])
	require.Len(t, store.activities, 1)
	assert.Equal(t, domain.ActivityAssigned, store.activities[0].Action)
	// Caller's snapshot is never mutated in place.
	assert.Nil(t, ticket.AssigneeID)
}

func TestDispatchOrderingDeterminism(t *testing.T) {
	// Rule 1 raises the priority; rule 2 only matches the raised value, so
	// rule 1's mutation must be visible to rule 2 within the same dispatch.
	rules := &stubRuleSource{rules: []domain.AutomationRule{
		{
			ID:             "rule-b",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Conditions: []domain.RuleCondition{
				{Field: "priority", Operator: domain.OperatorEquals, Value: "HIGH"},
			},
			Actions:  []domain.RuleAction{{Type: domain.ActionAddTag, Value: "fast-lane"}},
			IsActive: true,
			Order:    2,
		},
		{
			ID:             "rule-a",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionUpdatePriority, Value: "HIGH"}},
			IsActive:       true,
			Order:          1,
		},
	}}
	store := newStubTrackerStore()
	engine := newTestEngine(rules, store, nil, 1)

	ticket := testTicket()
	ticket.Priority = domain.TicketPriorityLow
	mutated, executed := engine.Dispatch(context.Background(), ticket, domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 2, executed)
	assert.Equal(t, domain.TicketPriorityHigh, mutated.Priority)
	assert.True(t, mutated.HasTag("fast-lane"))
}

func TestDispatchTieBreakByRuleID(t *testing.T) {
	// Same Order: rule "a" must run before rule "b" regardless of list order.
	rules := &stubRuleSource{rules: []domain.AutomationRule{
		{
			ID:             "b",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Conditions: []domain.RuleCondition{
				{Field: "status", Operator: domain.OperatorEquals, Value: "IN_PROGRESS"},
			},
			Actions:  []domain.RuleAction{{Type: domain.ActionAddTag, Value: "saw-a"}},
			IsActive: true,
			Order:    5,
		},
		{
			ID:             "a",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionUpdateStatus, Value: "IN_PROGRESS"}},
			IsActive:       true,
			Order:          5,
		},
	}}
	engine := newTestEngine(rules, newStubTrackerStore(), nil, 1)

	mutated, executed := engine.Dispatch(context.Background(), testTicket(), domain.RuleTypeTicketCreation, "")
	assert.Equal(t, 2, executed)
	assert.True(t, mutated.HasTag("saw-a"))
}

func TestDispatchExecutionAccounting(t *testing.T) {
	// One firing with many actions still increments the counter exactly once.
	rule := domain.AutomationRule{
		ID:             "rule-multi",
		RuleType:       domain.RuleTypeTicketCreation,
		ConditionMatch: domain.MatchAll,
		Actions: []domain.RuleAction{
			{Type: domain.ActionUpdateStatus, Value: "IN_PROGRESS"},
			{Type: domain.ActionUpdatePriority, Value: "HIGH"},
			{Type: domain.ActionAddTag, Value: "triaged"},
			{Type: domain.ActionNotify, Target: "oncall"},
		},
		IsActive: true,
	}
	store := newStubTrackerStore()
	engine := newTestEngine(&stubRuleSource{rules: []domain.AutomationRule{rule}}, store, nil, 1)

	_, executed := engine.Dispatch(context.Background(), testTicket(), domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, store.executions["rule-multi"])
	assert.Len(t, store.activities, 4)
}

func TestDispatchRecursionBound(t *testing.T) {
	// Rules A and B flip the priority back and forth on every cascade pass;
	// dispatch must terminate at the recursion ceiling, not loop forever.
	rules := &stubRuleSource{rules: []domain.AutomationRule{
		{
			ID:             "flip-low",
			RuleType:       domain.RuleTypeTicketUpdate,
			Trigger:        domain.TriggerPriorityChanged,
			ConditionMatch: domain.MatchAll,
			Conditions: []domain.RuleCondition{
				{Field: "priority", Operator: domain.OperatorEquals, Value: "HIGH"},
			},
			Actions:  []domain.RuleAction{{Type: domain.ActionUpdatePriority, Value: "LOW"}},
			IsActive: true,
			Order:    1,
		},
		{
			ID:             "flip-high",
			RuleType:       domain.RuleTypeTicketUpdate,
			Trigger:        domain.TriggerPriorityChanged,
			ConditionMatch: domain.MatchAll,
			Conditions: []domain.RuleCondition{
				{Field: "priority", Operator: domain.OperatorEquals, Value: "LOW"},
			},
			Actions:  []domain.RuleAction{{Type: domain.ActionUpdatePriority, Value: "HIGH"}},
			IsActive: true,
			Order:    2,
		},
	}}
	store := newStubTrackerStore()
	engine := newTestEngine(rules, store, nil, 2)

	ticket := testTicket()
	ticket.Priority = domain.TicketPriorityHigh

	done := make(chan struct{})
	var executed int
	go func() {
		_, executed = engine.Dispatch(context.Background(), ticket, domain.RuleTypeTicketUpdate, domain.TriggerPriorityChanged)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not terminate within the recursion ceiling")
	}

	// Two passes, two firings each.
	assert.Equal(t, 4, executed)
}

func TestDispatchRuleFetchFailureReturnsOriginal(t *testing.T) {
	engine := newTestEngine(&stubRuleSource{err: errors.New("postgres down")}, newStubTrackerStore(), nil, 2)

	ticket := testTicket()
	returned, executed := engine.Dispatch(context.Background(), ticket, domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 0, executed)
	assert.Same(t, ticket, returned)
}

func TestDispatchUnknownFieldRuleDoesNotMatch(t *testing.T) {
	rules := &stubRuleSource{rules: []domain.AutomationRule{
		{
			ID:             "broken",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Conditions: []domain.RuleCondition{
				{Field: "foo", Operator: domain.OperatorEquals, Value: "bar"},
			},
			Actions:  []domain.RuleAction{{Type: domain.ActionAddTag, Value: "never"}},
			IsActive: true,
			Order:    1,
		},
		{
			ID:             "healthy",
			RuleType:       domain.RuleTypeTicketCreation,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionAddTag, Value: "always"}},
			IsActive:       true,
			Order:          2,
		},
	}}
	store := newStubTrackerStore()
	engine := newTestEngine(rules, store, nil, 1)

	mutated, executed := engine.Dispatch(context.Background(), testTicket(), domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 1, executed)
	assert.False(t, mutated.HasTag("never"))
	assert.True(t, mutated.HasTag("always"))
	assert.Zero(t, store.executions["broken"])
}

func TestDispatchTriggerDetailFiltering(t *testing.T) {
	rules := &stubRuleSource{rules: []domain.AutomationRule{
		{
			ID:             "on-status",
			RuleType:       domain.RuleTypeTicketUpdate,
			Trigger:        domain.TriggerStatusChanged,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionAddTag, Value: "status-rule"}},
			IsActive:       true,
		},
		{
			ID:             "on-any",
			RuleType:       domain.RuleTypeTicketUpdate,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionAddTag, Value: "catch-all"}},
			IsActive:       true,
		},
		{
			ID:             "inactive",
			RuleType:       domain.RuleTypeTicketUpdate,
			ConditionMatch: domain.MatchAll,
			Actions:        []domain.RuleAction{{Type: domain.ActionAddTag, Value: "disabled"}},
			IsActive:       false,
		},
	}}
	engine := newTestEngine(rules, newStubTrackerStore(), nil, 1)

	mutated, executed := engine.Dispatch(context.Background(), testTicket(), domain.RuleTypeTicketUpdate, domain.TriggerReplied)

	assert.Equal(t, 1, executed)
	assert.True(t, mutated.HasTag("catch-all"))
	assert.False(t, mutated.HasTag("status-rule"))
	assert.False(t, mutated.HasTag("disabled"))
}

func TestDispatchTrackerFailureDoesNotBlockMutation(t *testing.T) {
	store := newStubTrackerStore()
	store.failAll = true
	rules := &stubRuleSource{rules: []domain.AutomationRule{{
		ID:             "rule-1",
		RuleType:       domain.RuleTypeTicketCreation,
		ConditionMatch: domain.MatchAll,
		Actions:        []domain.RuleAction{{Type: domain.ActionAddTag, Value: "kept"}},
		IsActive:       true,
	}}}
	engine := newTestEngine(rules, store, nil, 1)

	mutated, executed := engine.Dispatch(context.Background(), testTicket(), domain.RuleTypeTicketCreation, "")

	assert.Equal(t, 1, executed)
	assert.True(t, mutated.HasTag("kept"))
}

func TestTrackerRecordsInMemoryRuleState(t *testing.T) {
	store := newStubTrackerStore()
	tracker := NewTracker(store, zap.NewNop())
	rule := &domain.AutomationRule{ID: "rule-1"}
	executedAt := time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC)

	tracker.Record(context.Background(), rule, testTicket(), []AppliedAction{
		{Action: domain.ActivityTagAdded, NewValue: "x"},
		{Action: domain.ActivityNotified, NewValue: "oncall"},
	}, executedAt)

	assert.Equal(t, int64(1), rule.ExecutionCount)
	require.NotNil(t, rule.LastExecutedAt)
	assert.True(t, rule.LastExecutedAt.Equal(executedAt))
	assert.Equal(t, []domain.ActivityAction{domain.ActivityTagAdded, domain.ActivityNotified}, store.activityActions())
}
