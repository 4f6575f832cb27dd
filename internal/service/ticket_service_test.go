package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/events"
	"github.com/spec-kit/ticket-automation/internal/repository"
)

type memTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket
	updates int
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = "ticket-" + string(rune('a'+r.seq-1))
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.tickets[ticket.ID] = ticket.Clone()
	r.updates++
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket.Clone(), nil
}

func (r *memTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ExternalKey == key {
			return ticket.Clone(), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		result = append(result, *ticket.Clone())
	}
	return result, nil
}

func (r *memTicketRepo) ListOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status != domain.TicketStatusClosed && ticket.Status != domain.TicketStatusCancelled {
			result = append(result, *ticket.Clone())
		}
	}
	return result, nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages []domain.TicketMessage
}

func (r *memMessageRepo) Create(ctx context.Context, message *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = "msg-1"
	r.messages = append(r.messages, *message)
	return nil
}

func (r *memMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type memActivityRepo struct {
	mu      sync.Mutex
	entries []domain.TicketActivity
}

func (r *memActivityRepo) AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *activity)
	return nil
}

func (r *memActivityRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketActivity
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type memAgentRepo struct {
	agents map[string]*domain.Agent
}

func (r *memAgentRepo) Create(ctx context.Context, agent *domain.Agent) error { return nil }

func (r *memAgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	agent, ok := r.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return agent, nil
}

func (r *memAgentRepo) GetByEmail(ctx context.Context, email string) (*domain.Agent, error) {
	for _, agent := range r.agents {
		if agent.Email == email {
			return agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAgentRepo) ListActiveByGroup(ctx context.Context, groupID string) ([]domain.Agent, error) {
	var result []domain.Agent
	for _, agent := range r.agents {
		if agent.Active && agent.GroupID != nil && *agent.GroupID == groupID {
			result = append(result, *agent)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type memRuleSource struct {
	rules []domain.AutomationRule
}

func (s *memRuleSource) ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error) {
	var result []domain.AutomationRule
	for _, rule := range s.rules {
		if rule.IsActive && rule.RuleType == ruleType {
			result = append(result, rule)
		}
	}
	return result, nil
}

// trackerStore adapts the in-memory activity repo to the tracker, with
// execution counts discarded.
type trackerStore struct {
	activities *memActivityRepo
}

func (s trackerStore) IncrementRuleExecution(ctx context.Context, ruleID string, executedAt time.Time) error {
	return nil
}

func (s trackerStore) AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error {
	return s.activities.AppendTicketActivity(ctx, activity)
}

type fixture struct {
	svc        *TicketService
	tickets    *memTicketRepo
	activities *memActivityRepo
	events     []events.Event
}

func newFixture(t *testing.T, rules []domain.AutomationRule) *fixture {
	t.Helper()
	logger := zap.NewNop()
	tickets := newMemTicketRepo()
	activities := &memActivityRepo{}
	agents := &memAgentRepo{agents: map[string]*domain.Agent{
		"d2c2e3c8-0000-4000-8000-000000000001": {
			ID:     "d2c2e3c8-0000-4000-8000-000000000001",
			Name:   "Dana",
			Role:   domain.AgentRoleAgent,
			Active: true,
		},
	}}

	f := &fixture{tickets: tickets, activities: activities}
	dispatcher := events.NewInMemoryDispatcher(logger)
	recorder := func(ctx context.Context, event events.Event) error {
		f.events = append(f.events, event)
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated, events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged, events.EventTicketAssigned,
		events.EventTicketReplied, events.EventRuleFired,
	} {
		dispatcher.Subscribe(eventType, recorder)
	}

	var engine *automation.Engine
	if rules != nil {
		engine = automation.NewEngine(automation.EngineDependencies{
			Rules:     &memRuleSource{rules: rules},
			Evaluator: automation.NewEvaluator(logger),
			Executor:  automation.NewExecutor(nil, nil, logger),
			Tracker:   automation.NewTracker(trackerStore{activities: activities}, logger),
			Guard:     automation.NewRecursionGuard(2),
			Logger:    logger,
		})
	}

	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:   tickets,
		MessageRepo:  &memMessageRepo{},
		ActivityRepo: activities,
		AgentRepo:    agents,
		Engine:       engine,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	return f
}

func (f *fixture) eventTypes() []events.EventType {
	types := make([]events.EventType, 0, len(f.events))
	for _, event := range f.events {
		types = append(types, event.Type)
	}
	return types
}

func TestCreateTicketDefaultsAndEvents(t *testing.T) {
	f := newFixture(t, nil)

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "  Printer on fire  ",
		Description: "third floor",
	})
	require.NoError(t, err)

	assert.Equal(t, "Printer on fire", ticket.Subject)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.NotEmpty(t, ticket.ExternalKey)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.eventTypes())
}

func TestCreateTicketRunsCreationRules(t *testing.T) {
	rules := []domain.AutomationRule{{
		ID:       "rule-tag",
		Name:     "tag urgent hardware",
		RuleType: domain.RuleTypeTicketCreation,
		Conditions: []domain.RuleCondition{
			{Field: "priority", Operator: domain.OperatorEquals, Value: "URGENT"},
		},
		Actions:  []domain.RuleAction{{Type: domain.ActionAddTag, Value: "escalated"}},
		IsActive: true,
	}}
	f := newFixture(t, rules)

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "Server down",
		Description: "prod cluster",
		Priority:    domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)

	assert.Contains(t, ticket.Tags, "escalated")
	assert.Contains(t, f.eventTypes(), events.EventRuleFired)

	// The mutated ticket is what was persisted.
	stored, err := f.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Tags, "escalated")
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	f := newFixture(t, nil)
	admin := &domain.Agent{ID: "agent-1", Role: domain.AgentRoleAdmin, Active: true}

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "Laptop request",
		Description: "new hire",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusClosed)
	assert.Error(t, err)
}

func TestUpdateStatusRecordsActivityAndStatusClock(t *testing.T) {
	f := newFixture(t, nil)
	admin := &domain.Agent{ID: "agent-1", Role: domain.AgentRoleAdmin, Active: true}

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "VPN broken",
		Description: "cannot connect",
	})
	require.NoError(t, err)

	created := ticket.StatusChangedAt
	updated, err := f.svc.UpdateStatus(context.Background(), admin, ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.True(t, !updated.StatusChangedAt.Before(created))

	entries, err := f.activities.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActivityStatusChanged, entries[0].Action)
	assert.Equal(t, "OPEN", entries[0].OldValue)
	assert.Equal(t, "IN_PROGRESS", entries[0].NewValue)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "agent-1", *entries[0].ActorID)
	assert.Equal(t, domain.SubjectTypeAgent, entries[0].ActorType)
}

func TestAddReplyEnforcesOwnership(t *testing.T) {
	f := newFixture(t, nil)

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "Billing question",
		Description: "invoice 42",
	})
	require.NoError(t, err)

	_, err = f.svc.AddReply(context.Background(), domain.SubjectTypeUser, "someone-else", nil, ticket.ID, "let me in")
	assert.Error(t, err)

	msg, err := f.svc.AddReply(context.Background(), domain.SubjectTypeUser, "user-1", nil, ticket.ID, "any update?")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthorTypeUser, msg.AuthorType)
	assert.Contains(t, f.eventTypes(), events.EventTicketReplied)
}

func TestAddReplyRecordsUserActorActivity(t *testing.T) {
	// Requesters are not agents, so the audit entry must carry the user id
	// alongside an actor type naming which table it belongs to.
	f := newFixture(t, nil)

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "Keyboard sticky",
		Description: "desk 7",
	})
	require.NoError(t, err)

	_, err = f.svc.AddReply(context.Background(), domain.SubjectTypeUser, "user-1", nil, ticket.ID, "still broken")
	require.NoError(t, err)

	entries, err := f.activities.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActivityReplied, entries[0].Action)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, "user-1", *entries[0].ActorID)
	assert.Equal(t, domain.SubjectTypeUser, entries[0].ActorType)
}

func TestAssignTicketRecordsAssignment(t *testing.T) {
	f := newFixture(t, nil)
	admin := &domain.Agent{ID: "agent-1", Role: domain.AgentRoleAdmin, Active: true}

	ticket, err := f.svc.CreateTicket(context.Background(), "user-1", TicketCreateInput{
		Subject:     "Monitor flickers",
		Description: "desk 12",
	})
	require.NoError(t, err)

	assigned, err := f.svc.AssignTicket(context.Background(), admin, ticket.ID, "d2c2e3c8-0000-4000-8000-000000000001")
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, "d2c2e3c8-0000-4000-8000-000000000001", *assigned.AssigneeID)

	entries, err := f.activities.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActivityAssigned, entries[0].Action)
}

func TestAgentAccessScoping(t *testing.T) {
	group := "grp-net"
	other := "grp-hw"
	agent := &domain.Agent{ID: "agent-1", Role: domain.AgentRoleAgent, GroupID: &group}

	inGroup := &domain.Ticket{ID: "t1", GroupID: &group}
	outOfGroup := &domain.Ticket{ID: "t2", GroupID: &other}
	assignedToAgent := &domain.Ticket{ID: "t3", GroupID: &other, AssigneeID: &agent.ID}

	assert.True(t, agentCanAccessTicket(agent, inGroup))
	assert.False(t, agentCanAccessTicket(agent, outOfGroup))
	assert.True(t, agentCanAccessTicket(agent, assignedToAgent))
	assert.True(t, agentCanAccessTicket(&domain.Agent{ID: "adm", Role: domain.AgentRoleAdmin}, outOfGroup))
}
