package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/repository"
	"github.com/spec-kit/ticket-automation/pkg/util"
)

// RuleService manages automation rule definitions.
type RuleService struct {
	rules repository.AutomationRuleRepository
}

// RuleInput describes rule creation/update payload.
type RuleInput struct {
	Name           string
	Description    string
	RuleType       domain.RuleType
	Trigger        domain.TriggerDetail
	ConditionMatch domain.ConditionMatch
	Conditions     []domain.RuleCondition
	Actions        []domain.RuleAction
	IsActive       bool
	Order          int
}

// NewRuleService constructs the service.
func NewRuleService(rules repository.AutomationRuleRepository) *RuleService {
	return &RuleService{rules: rules}
}

// CreateRule validates and stores a new rule.
func (s *RuleService) CreateRule(ctx context.Context, input RuleInput) (*domain.AutomationRule, error) {
	rule, err := ruleFromInput(input)
	if err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule validates and replaces an existing rule definition. Execution
// counters are preserved.
func (s *RuleService) UpdateRule(ctx context.Context, id string, input RuleInput) (*domain.AutomationRule, error) {
	existing, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := ruleFromInput(input)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.ExecutionCount = existing.ExecutionCount
	rule.LastExecutedAt = existing.LastExecutedAt
	rule.CreatedAt = existing.CreatedAt
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	return s.rules.Delete(ctx, id)
}

// GetRule fetches one rule.
func (s *RuleService) GetRule(ctx context.Context, id string) (*domain.AutomationRule, error) {
	return s.rules.GetByID(ctx, id)
}

// ListRules returns all rules in dispatch order.
func (s *RuleService) ListRules(ctx context.Context, includeInactive bool) ([]domain.AutomationRule, error) {
	return s.rules.List(ctx, includeInactive)
}

func ruleFromInput(input RuleInput) (*domain.AutomationRule, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, util.NewValidationError("rule name is required", nil)
	}
	if !validRuleType(input.RuleType) {
		return nil, util.NewValidationError("unknown rule type", map[string]any{"rule_type": input.RuleType})
	}
	if err := validateTrigger(input.RuleType, input.Trigger); err != nil {
		return nil, err
	}
	match := input.ConditionMatch
	if match == "" {
		match = domain.MatchAll
	}
	if match != domain.MatchAll && match != domain.MatchAny {
		return nil, util.NewValidationError("unknown condition match", map[string]any{"condition_match": match})
	}
	if len(input.Actions) == 0 {
		return nil, util.NewValidationError("at least one action is required", nil)
	}
	for i, cond := range input.Conditions {
		if err := validateCondition(i, cond); err != nil {
			return nil, err
		}
	}
	for i, action := range input.Actions {
		if err := validateAction(i, action); err != nil {
			return nil, err
		}
	}

	conditions := input.Conditions
	if conditions == nil {
		conditions = []domain.RuleCondition{}
	}

	return &domain.AutomationRule{
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		RuleType:       input.RuleType,
		Trigger:        input.Trigger,
		ConditionMatch: match,
		Conditions:     conditions,
		Actions:        input.Actions,
		IsActive:       input.IsActive,
		Order:          input.Order,
	}, nil
}

func validRuleType(ruleType domain.RuleType) bool {
	switch ruleType {
	case domain.RuleTypeTicketCreation, domain.RuleTypeTicketUpdate, domain.RuleTypeTimeTrigger:
		return true
	}
	return false
}

// validateTrigger accepts an empty trigger on update rules (catch-all) but
// requires a cadence on time_trigger rules so the sweeper knows the token
// lifetime.
func validateTrigger(ruleType domain.RuleType, trigger domain.TriggerDetail) error {
	switch ruleType {
	case domain.RuleTypeTicketCreation:
		if trigger != "" {
			return util.NewValidationError("creation rules take no trigger", nil)
		}
	case domain.RuleTypeTicketUpdate:
		switch trigger {
		case "", domain.TriggerStatusChanged, domain.TriggerPriorityChanged,
			domain.TriggerAssigned, domain.TriggerReplied:
		default:
			return util.NewValidationError("unknown update trigger", map[string]any{"trigger": trigger})
		}
	case domain.RuleTypeTimeTrigger:
		if trigger != domain.TriggerHourly && trigger != domain.TriggerDaily {
			return util.NewValidationError("time trigger rules require an hourly or daily cadence", map[string]any{"trigger": trigger})
		}
	}
	return nil
}

func validateCondition(index int, cond domain.RuleCondition) error {
	if !automation.KnownConditionField(cond.Field) {
		return util.NewValidationError(fmt.Sprintf("conditions[%d]: unknown field", index), map[string]any{"field": cond.Field})
	}
	switch cond.Operator {
	case domain.OperatorEquals, domain.OperatorNotEquals, domain.OperatorContains,
		domain.OperatorGTE, domain.OperatorLTE, domain.OperatorGT, domain.OperatorLT:
	default:
		return util.NewValidationError(fmt.Sprintf("conditions[%d]: unknown operator", index), map[string]any{"operator": cond.Operator})
	}
	if cond.Value == nil {
		return util.NewValidationError(fmt.Sprintf("conditions[%d]: value is required", index), nil)
	}
	return nil
}

func validateAction(index int, action domain.RuleAction) error {
	switch action.Type {
	case domain.ActionAssign:
		if strings.TrimSpace(action.Target) == "" {
			return util.NewValidationError(fmt.Sprintf("actions[%d]: assign requires a target", index), nil)
		}
	case domain.ActionUpdateStatus:
		if !validStatus(domain.TicketStatus(action.Value)) {
			return util.NewValidationError(fmt.Sprintf("actions[%d]: unknown status", index), map[string]any{"value": action.Value})
		}
	case domain.ActionUpdatePriority:
		if !validPriority(domain.TicketPriority(action.Value)) {
			return util.NewValidationError(fmt.Sprintf("actions[%d]: unknown priority", index), map[string]any{"value": action.Value})
		}
	case domain.ActionAddTag:
		if strings.TrimSpace(action.Value) == "" {
			return util.NewValidationError(fmt.Sprintf("actions[%d]: add_tag requires a value", index), nil)
		}
	case domain.ActionNotify:
		if strings.TrimSpace(action.Target) == "" {
			return util.NewValidationError(fmt.Sprintf("actions[%d]: notify requires a target", index), nil)
		}
	default:
		return util.NewValidationError(fmt.Sprintf("actions[%d]: unknown action type", index), map[string]any{"type": action.Type})
	}
	return nil
}

func validStatus(status domain.TicketStatus) bool {
	switch status {
	case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusPendingUser,
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled:
		return true
	}
	return false
}

func validPriority(priority domain.TicketPriority) bool {
	switch priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
		return true
	}
	return false
}
