package repository

// AutomationStore combines the two repositories the execution tracker
// writes through: one for rule counters, one for the activity log.
type AutomationStore struct {
	AutomationRuleRepository
	TicketActivityRepository
}

// NewAutomationStore instantiates the composite.
func NewAutomationStore(rules AutomationRuleRepository, activities TicketActivityRepository) *AutomationStore {
	return &AutomationStore{AutomationRuleRepository: rules, TicketActivityRepository: activities}
}
