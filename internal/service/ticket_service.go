package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/events"
	"github.com/spec-kit/ticket-automation/internal/repository"
	"github.com/spec-kit/ticket-automation/pkg/util"
)

// TicketService coordinates ticket workflows. Every mutating operation
// persists the change, records the audit entry, then hands the ticket to
// the automation engine for the matching event before publishing events.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	activities repository.TicketActivityRepository
	agents     repository.AgentRepository
	engine     *automation.Engine
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.TicketMessageRepository
	ActivityRepo repository.TicketActivityRepository
	AgentRepo    repository.AgentRepository
	Engine       *automation.Engine
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	GroupID      *string
	Subject      string
	Description  string
	Priority     domain.TicketPriority
	Tags         []string
	CustomFields map[string]any
}

// TicketUserFilter describes end-user listing filters.
type TicketUserFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketAgentFilter describes agent listing filters.
type TicketAgentFilter struct {
	GroupID     *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		activities: deps.ActivityRepo,
		agents:     deps.AgentRepo,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// CreateTicket creates a ticket for a user and runs creation rules on it.
func (s *TicketService) CreateTicket(ctx context.Context, userID string, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, util.NewValidationError("subject is required", nil)
	}

	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		RequesterID:  userID,
		GroupID:      input.GroupID,
		Subject:      subject,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Priority:     input.Priority,
		Tags:         input.Tags,
		CustomFields: input.CustomFields,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	} else if !validPriority(ticket.Priority) {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": ticket.Priority})
	}
	// NOT NULL columns: never hand pgx a nil slice or map.
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if ticket.CustomFields == nil {
		ticket.CustomFields = map[string]any{}
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    userActor(userID),
		Payload: events.TicketCreatedPayload{
			ExternalKey: ticket.ExternalKey,
			GroupID:     ticket.GroupID,
			Priority:    ticket.Priority,
			Subject:     ticket.Subject,
		},
	})
	return s.dispatchAutomation(ctx, ticket, domain.RuleTypeTicketCreation, ""), nil
}

// ListUserTickets returns paginated tickets for a requester.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, filter TicketUserFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		RequesterID: &userID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
}

// GetTicketForUser fetches a ticket ensuring ownership.
func (s *TicketService) GetTicketForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.RequesterID != userID {
		return nil, nil, util.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// ListAgentTickets returns tickets accessible to an agent.
func (s *TicketService) ListAgentTickets(ctx context.Context, agent *domain.Agent, filter TicketAgentFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		GroupID:     filter.GroupID,
		AssigneeID:  filter.AssigneeID,
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if agent != nil && agent.Role != domain.AgentRoleAdmin && agent.GroupID != nil {
		repoFilter.GroupID = agent.GroupID
	}
	return s.tickets.ListWithFilter(ctx, repoFilter)
}

// GetTicketForAgent fetches ticket ensuring agent access.
func (s *TicketService) GetTicketForAgent(ctx context.Context, agent *domain.Agent, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !agentCanAccessTicket(agent, ticket) {
		return nil, nil, util.NewForbidden("access denied")
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// AddReply appends a message and runs the replied update rules.
func (s *TicketService) AddReply(ctx context.Context, actor domain.SubjectType, actorID string, agent *domain.Agent, ticketID, body string) (*domain.TicketMessage, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, util.NewValidationError("reply body is required", nil)
	}

	msg := &domain.TicketMessage{TicketID: ticket.ID, Body: body}
	switch actor {
	case domain.SubjectTypeUser:
		if ticket.RequesterID != actorID {
			return nil, util.NewForbidden("access denied")
		}
		msg.AuthorType = domain.AuthorTypeUser
		authorID := ticket.RequesterID
		msg.AuthorID = &authorID
	case domain.SubjectTypeAgent:
		if agent == nil {
			return nil, util.NewForbidden("agent context required")
		}
		if !agentCanAccessTicket(agent, ticket) {
			return nil, util.NewForbidden("access denied")
		}
		msg.AuthorType = domain.AuthorTypeAgent
		msg.AuthorID = &agent.ID
	default:
		return nil, util.NewForbidden("unknown actor")
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, ticket.ID, actor, msg.AuthorID, domain.ActivityReplied, "", stringPreview(body, 120))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReplied,
		TicketID: ticket.ID,
		Actor:    actorFromSubject(actor, actorID),
		Payload: events.TicketRepliedPayload{
			MessageID:   msg.ID,
			AuthorType:  msg.AuthorType,
			AuthorID:    msg.AuthorID,
			BodyPreview: stringPreview(body, 120),
		},
	})
	s.dispatchAutomation(ctx, ticket, domain.RuleTypeTicketUpdate, domain.TriggerReplied)
	return msg, nil
}

// UpdateStatus updates ticket status by an agent.
func (s *TicketService) UpdateStatus(ctx context.Context, agent *domain.Agent, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if agent == nil {
		return nil, util.NewForbidden("agent required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !agentCanAccessTicket(agent, ticket) {
		return nil, util.NewForbidden("access denied")
	}
	if !isValidTransition(ticket.Status, newStatus) {
		return nil, util.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   newStatus,
		})
	}

	now := time.Now()
	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.StatusChangedAt = now
	if newStatus == domain.TicketStatusClosed {
		ticket.ClosedAt = &now
	} else {
		ticket.ClosedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, ticket.ID, domain.SubjectTypeAgent, &agent.ID, domain.ActivityStatusChanged, string(oldStatus), string(newStatus))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    agentActor(agent.ID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return s.dispatchAutomation(ctx, ticket, domain.RuleTypeTicketUpdate, domain.TriggerStatusChanged), nil
}

// UpdatePriority changes ticket priority by an agent.
func (s *TicketService) UpdatePriority(ctx context.Context, agent *domain.Agent, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if agent == nil {
		return nil, util.NewForbidden("agent required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !agentCanAccessTicket(agent, ticket) {
		return nil, util.NewForbidden("access denied")
	}
	if !validPriority(newPriority) {
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}

	oldPriority := ticket.Priority
	ticket.Priority = newPriority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, ticket.ID, domain.SubjectTypeAgent, &agent.ID, domain.ActivityPriorityChanged, string(oldPriority), string(newPriority))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    agentActor(agent.ID),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: newPriority,
		},
	})
	return s.dispatchAutomation(ctx, ticket, domain.RuleTypeTicketUpdate, domain.TriggerPriorityChanged), nil
}

// AssignTicket assigns a ticket to an agent by an agent.
func (s *TicketService) AssignTicket(ctx context.Context, agent *domain.Agent, ticketID, assigneeID string) (*domain.Ticket, error) {
	if agent == nil {
		return nil, util.NewForbidden("agent required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !agentCanAccessTicket(agent, ticket) {
		return nil, util.NewForbidden("access denied")
	}
	assignee, err := s.agents.GetByID(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	if !assignee.Active {
		return nil, util.NewValidationError("assignee inactive", nil)
	}

	oldValue := ""
	if ticket.AssigneeID != nil {
		oldValue = *ticket.AssigneeID
	}
	ticket.AssigneeID = &assignee.ID
	if assignee.GroupID != nil {
		ticket.GroupID = assignee.GroupID
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, ticket.ID, domain.SubjectTypeAgent, &agent.ID, domain.ActivityAssigned, oldValue, assignee.ID)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    agentActor(agent.ID),
		Payload: events.TicketAssignedPayload{
			AssigneeAgentID: ticket.AssigneeID,
			GroupID:         ticket.GroupID,
		},
	})
	return s.dispatchAutomation(ctx, ticket, domain.RuleTypeTicketUpdate, domain.TriggerAssigned), nil
}

// ListActivities returns the activity log for agents.
func (s *TicketService) ListActivities(ctx context.Context, agent *domain.Agent, ticketID string) ([]domain.TicketActivity, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !agentCanAccessTicket(agent, ticket) {
		return nil, util.NewForbidden("access denied")
	}
	return s.activities.ListByTicket(ctx, ticketID)
}

// dispatchAutomation hands the ticket to the rule engine and persists the
// result when any rule fired. Engine failures never fail the user-facing
// operation.
func (s *TicketService) dispatchAutomation(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail) *domain.Ticket {
	if s.engine == nil {
		return ticket
	}
	mutated, fired := s.engine.Dispatch(ctx, ticket, event, detail)
	if fired == 0 {
		return mutated
	}
	if err := s.tickets.Update(ctx, mutated); err != nil {
		s.logger.Error("failed to persist automation result",
			zap.String("ticket_id", mutated.ID),
			zap.Error(err))
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventRuleFired,
		TicketID: mutated.ID,
		Actor:    events.SystemActor(),
		Payload: events.RuleFiredPayload{
			Event:         string(event),
			RulesExecuted: fired,
		},
	})
	return mutated
}

func (s *TicketService) recordActivity(ctx context.Context, ticketID string, actor domain.SubjectType, actorID *string, action domain.ActivityAction, oldValue, newValue string) {
	entry := &domain.TicketActivity{
		TicketID:  ticketID,
		ActorID:   actorID,
		ActorType: actor,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
	if err := s.activities.AppendTicketActivity(ctx, entry); err != nil {
		s.logger.Warn("failed to append ticket activity",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func agentCanAccessTicket(agent *domain.Agent, ticket *domain.Ticket) bool {
	if agent == nil {
		return false
	}
	if agent.Role == domain.AgentRoleAdmin {
		return true
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == agent.ID {
		return true
	}
	if agent.GroupID == nil {
		return true
	}
	return ticket.GroupID != nil && *ticket.GroupID == *agent.GroupID
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func userActor(userID string) events.Actor {
	return events.Actor{
		Type:   domain.SubjectTypeUser,
		UserID: &userID,
	}
}

func agentActor(agentID string) events.Actor {
	return events.Actor{
		Type:    domain.SubjectTypeAgent,
		AgentID: &agentID,
	}
}

func actorFromSubject(subject domain.SubjectType, id string) events.Actor {
	switch subject {
	case domain.SubjectTypeAgent:
		return agentActor(id)
	default:
		return userActor(id)
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:        {domain.TicketStatusInProgress, domain.TicketStatusPendingUser, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress:  {domain.TicketStatusPendingUser, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusPendingUser: {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusResolved:    {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:      {},
	domain.TicketStatusCancelled:   {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
