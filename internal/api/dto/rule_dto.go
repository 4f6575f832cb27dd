package dto

import (
	"time"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// RuleRequest payload for rule create/update.
type RuleRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	RuleType       domain.RuleType        `json:"rule_type"`
	Trigger        domain.TriggerDetail   `json:"trigger,omitempty"`
	ConditionMatch domain.ConditionMatch  `json:"condition_match,omitempty"`
	Conditions     []domain.RuleCondition `json:"conditions,omitempty"`
	Actions        []domain.RuleAction    `json:"actions"`
	IsActive       bool                   `json:"is_active"`
	Order          int                    `json:"order"`
}

// RuleResponse is the API representation of a rule.
type RuleResponse struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	RuleType       domain.RuleType        `json:"rule_type"`
	Trigger        domain.TriggerDetail   `json:"trigger,omitempty"`
	ConditionMatch domain.ConditionMatch  `json:"condition_match"`
	Conditions     []domain.RuleCondition `json:"conditions,omitempty"`
	Actions        []domain.RuleAction    `json:"actions"`
	IsActive       bool                   `json:"is_active"`
	Order          int                    `json:"order"`
	ExecutionCount int64                  `json:"execution_count"`
	LastExecutedAt *time.Time             `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
