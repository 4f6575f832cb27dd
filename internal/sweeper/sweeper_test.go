package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/domain"
)

// fakeRuleSource serves time_trigger rules.
type fakeRuleSource struct {
	rules []domain.AutomationRule
	err   error
}

func (s *fakeRuleSource) ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

// fakeTicketStore serves open tickets and records updates.
type fakeTicketStore struct {
	mu      sync.Mutex
	tickets []domain.Ticket
	updated []domain.Ticket
	err     error
}

func (s *fakeTicketStore) ListOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Ticket(nil), s.tickets...), nil
}

func (s *fakeTicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, *ticket)
	return nil
}

// fakeDispatcher records dispatches and closes the ticket for each rule.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls [][]string // rule IDs per dispatch
}

func (d *fakeDispatcher) DispatchRules(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail, rules []domain.AutomationRule) (*domain.Ticket, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	d.calls = append(d.calls, ids)

	mutated := ticket.Clone()
	mutated.Status = domain.TicketStatusClosed
	return mutated, len(rules)
}

func (d *fakeDispatcher) dispatchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func staleResolvedTicket(id string) domain.Ticket {
	return domain.Ticket{
		ID:              id,
		Status:          domain.TicketStatusResolved,
		Priority:        domain.TicketPriorityMedium,
		StatusChangedAt: time.Now().Add(-8 * 24 * time.Hour),
		CreatedAt:       time.Now().Add(-30 * 24 * time.Hour),
	}
}

func closeStaleRule() domain.AutomationRule {
	return domain.AutomationRule{
		ID:             "close-stale",
		Name:           "close resolved tickets after a week",
		RuleType:       domain.RuleTypeTimeTrigger,
		Trigger:        domain.TriggerDaily,
		ConditionMatch: domain.MatchAll,
		Conditions: []domain.RuleCondition{
			{Field: "status", Operator: domain.OperatorEquals, Value: "RESOLVED"},
			{Field: "days_in_status", Operator: domain.OperatorGTE, Value: float64(7)},
		},
		Actions:  []domain.RuleAction{{Type: domain.ActionUpdateStatus, Value: "CLOSED"}},
		IsActive: true,
	}
}

func newTestSweeper(rules *fakeRuleSource, tickets *fakeTicketStore, dispatcher Dispatcher) *Sweeper {
	logger := zap.NewNop()
	return New(Config{Spec: "@hourly"}, Dependencies{
		Rules:     rules,
		Tickets:   tickets,
		Tokens:    NewMemoryTokenStore(),
		Engine:    dispatcher,
		Evaluator: automation.NewEvaluator(logger),
		Logger:    logger,
	})
}

func TestSweepFiresAndDeduplicates(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{closeStaleRule()}}
	tickets := &fakeTicketStore{tickets: []domain.Ticket{staleResolvedTicket("tck-1")}}
	dispatcher := &fakeDispatcher{}
	s := newTestSweeper(rules, tickets, dispatcher)

	s.Run(context.Background())
	require.Equal(t, 1, dispatcher.dispatchCount())
	assert.Equal(t, []string{"close-stale"}, dispatcher.calls[0])
	require.Len(t, tickets.updated, 1)
	assert.Equal(t, domain.TicketStatusClosed, tickets.updated[0].Status)

	// Re-running immediately must not fire the same rule for the same
	// ticket again: the dedup token is still held.
	s.Run(context.Background())
	assert.Equal(t, 1, dispatcher.dispatchCount())
}

func TestSweepSkipsUnsatisfiedConditions(t *testing.T) {
	fresh := staleResolvedTicket("tck-2")
	fresh.StatusChangedAt = time.Now().Add(-2 * time.Hour)

	rules := &fakeRuleSource{rules: []domain.AutomationRule{closeStaleRule()}}
	tickets := &fakeTicketStore{tickets: []domain.Ticket{fresh}}
	dispatcher := &fakeDispatcher{}
	s := newTestSweeper(rules, tickets, dispatcher)

	s.Run(context.Background())
	assert.Zero(t, dispatcher.dispatchCount())
	assert.Empty(t, tickets.updated)
}

func TestSweepUnsatisfiedPairIsNotSuppressedLater(t *testing.T) {
	// First sweep: conditions not met, so no token is taken. Once the
	// ticket ages past the threshold, the rule must still fire.
	ticket := staleResolvedTicket("tck-3")
	ticket.StatusChangedAt = time.Now().Add(-2 * time.Hour)

	rules := &fakeRuleSource{rules: []domain.AutomationRule{closeStaleRule()}}
	tickets := &fakeTicketStore{tickets: []domain.Ticket{ticket}}
	dispatcher := &fakeDispatcher{}
	s := newTestSweeper(rules, tickets, dispatcher)

	s.Run(context.Background())
	assert.Zero(t, dispatcher.dispatchCount())

	tickets.mu.Lock()
	tickets.tickets[0].StatusChangedAt = time.Now().Add(-8 * 24 * time.Hour)
	tickets.mu.Unlock()

	s.Run(context.Background())
	assert.Equal(t, 1, dispatcher.dispatchCount())
}

func TestSweepAbortsWhenRulesUnavailable(t *testing.T) {
	rules := &fakeRuleSource{err: errors.New("postgres down")}
	tickets := &fakeTicketStore{tickets: []domain.Ticket{staleResolvedTicket("tck-4")}}
	dispatcher := &fakeDispatcher{}
	s := newTestSweeper(rules, tickets, dispatcher)

	s.Run(context.Background())
	assert.Zero(t, dispatcher.dispatchCount())
}

func TestSweepSkipsOverlappingRun(t *testing.T) {
	rules := &fakeRuleSource{rules: []domain.AutomationRule{closeStaleRule()}}
	tickets := &fakeTicketStore{tickets: []domain.Ticket{staleResolvedTicket("tck-5")}}
	dispatcher := &fakeDispatcher{}
	s := newTestSweeper(rules, tickets, dispatcher)

	s.running.Store(true)
	s.Run(context.Background())
	assert.Zero(t, dispatcher.dispatchCount())

	s.running.Store(false)
	s.Run(context.Background())
	assert.Equal(t, 1, dispatcher.dispatchCount())
}

func TestMemoryTokenStoreTTL(t *testing.T) {
	store := NewMemoryTokenStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	acquired, err := store.Acquire(context.Background(), "rule", "ticket", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = store.Acquire(context.Background(), "rule", "ticket", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	// Token expires after its TTL.
	current = current.Add(61 * time.Minute)
	acquired, err = store.Acquire(context.Background(), "rule", "ticket", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Distinct pairs do not contend.
	acquired, err = store.Acquire(context.Background(), "rule", "other-ticket", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTokenTTLFollowsCadence(t *testing.T) {
	s := New(Config{}, Dependencies{Logger: zap.NewNop()})
	assert.Equal(t, time.Hour, s.tokenTTL(domain.TriggerHourly))
	assert.Equal(t, 24*time.Hour, s.tokenTTL(domain.TriggerDaily))
	assert.Equal(t, time.Hour, s.tokenTTL("weekly"))
}
