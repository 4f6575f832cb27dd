package domain

import "time"

// RuleType selects which event kinds a rule is eligible for.
type RuleType string

const (
	RuleTypeTicketCreation RuleType = "ticket_creation"
	RuleTypeTicketUpdate   RuleType = "ticket_update"
	RuleTypeTimeTrigger    RuleType = "time_trigger"
)

// TriggerDetail narrows ticket_update rules to a specific sub-event. An
// empty trigger on a rule matches every sub-event of its rule type.
type TriggerDetail string

const (
	TriggerStatusChanged   TriggerDetail = "status_changed"
	TriggerPriorityChanged TriggerDetail = "priority_changed"
	TriggerAssigned        TriggerDetail = "assigned"
	TriggerReplied         TriggerDetail = "replied"

	// Cadence labels for time_trigger rules.
	TriggerHourly TriggerDetail = "hourly"
	TriggerDaily  TriggerDetail = "daily"
)

// ConditionMatch is the combinator joining a rule's conditions.
type ConditionMatch string

const (
	MatchAll ConditionMatch = "all"
	MatchAny ConditionMatch = "any"
)

// ConditionOperator enumerates supported comparison operators.
type ConditionOperator string

const (
	OperatorEquals    ConditionOperator = "equals"
	OperatorNotEquals ConditionOperator = "not_equals"
	OperatorContains  ConditionOperator = "contains"
	OperatorGTE       ConditionOperator = "gte"
	OperatorLTE       ConditionOperator = "lte"
	OperatorGT        ConditionOperator = "gt"
	OperatorLT        ConditionOperator = "lt"
)

// RuleCondition compares one ticket field against a literal value.
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// ActionType enumerates supported rule actions.
type ActionType string

const (
	ActionAssign         ActionType = "assign"
	ActionUpdateStatus   ActionType = "update_status"
	ActionUpdatePriority ActionType = "update_priority"
	ActionAddTag         ActionType = "add_tag"
	ActionNotify         ActionType = "notify"
)

// RuleAction mutates the ticket (or, for notify, a side channel). Target
// names an assignee or pool for assign and a recipient for notify; Value
// carries the new field value for the update actions.
type RuleAction struct {
	Type   ActionType `json:"type"`
	Target string     `json:"target,omitempty"`
	Value  string     `json:"value,omitempty"`
}

// AutomationRule is a stored condition/action pair eligible for one event
// kind. ExecutionCount and LastExecutedAt are mutated only by the execution
// tracker, never by rule authors.
type AutomationRule struct {
	ID             string
	Name           string
	Description    string
	RuleType       RuleType
	Trigger        TriggerDetail
	ConditionMatch ConditionMatch
	Conditions     []RuleCondition
	Actions        []RuleAction
	IsActive       bool
	Order          int
	ExecutionCount int64
	LastExecutedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
