package automation

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/observability"
)

// RuleSource supplies the rules eligible for an event kind. The rule list is
// read-only for the duration of a dispatch.
type RuleSource interface {
	ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error)
}

// Engine is the trigger dispatcher. One Dispatch call is one end-to-end
// engine invocation for a single ticket event: it selects candidate rules,
// evaluates and executes them in priority order, threads the mutated ticket
// through successive rules, and bounds cascading re-dispatch.
type Engine struct {
	rules     RuleSource
	evaluator *Evaluator
	executor  *Executor
	tracker   *Tracker
	guard     RecursionGuard
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// EngineDependencies bundles the engine's collaborators.
type EngineDependencies struct {
	Rules     RuleSource
	Evaluator *Evaluator
	Executor  *Executor
	Tracker   *Tracker
	Guard     RecursionGuard
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewEngine constructs the dispatcher.
func NewEngine(deps EngineDependencies) *Engine {
	return &Engine{
		rules:     deps.Rules,
		evaluator: deps.Evaluator,
		executor:  deps.Executor,
		tracker:   deps.Tracker,
		guard:     deps.Guard,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Dispatch runs the engine for one ticket event and returns the final
// ticket plus the number of rules fired across all passes. Rule-level
// failures never propagate; a failure to fetch the rule list returns the
// original ticket untouched with zero rules executed.
func (e *Engine) Dispatch(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail) (*domain.Ticket, int) {
	candidates, err := e.fetchCandidates(ctx, event, detail)
	if err != nil {
		e.logger.Error("automation rules unavailable, skipping dispatch",
			zap.String("ticket_id", ticket.ID),
			zap.String("event", string(event)),
			zap.Error(err))
		return ticket, 0
	}
	return e.run(ctx, ticket, event, detail, candidates)
}

// DispatchRules runs the engine against a pre-selected first-pass rule set.
// The sweeper uses this after acquiring per-rule de-duplication tokens, so
// only token-holding rules are candidates on the first pass. Cascade passes
// fetch rules normally.
func (e *Engine) DispatchRules(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail, rules []domain.AutomationRule) (*domain.Ticket, int) {
	return e.run(ctx, ticket, event, detail, selectCandidates(rules, event, detail))
}

func (e *Engine) run(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail, candidates []domain.AutomationRule) (*domain.Ticket, int) {
	start := e.now()
	origin := event
	working := ticket
	total := 0

	for depth := 0; ; depth++ {
		if !e.guard.Allow(depth) {
			e.logger.Warn("recursion limit reached, halting cascade",
				zap.String("ticket_id", ticket.ID),
				zap.Int("depth", depth),
				zap.Int("rules_executed", total))
			e.metrics.RecordRecursionLimit()
			break
		}

		if depth > 0 {
			var err error
			candidates, err = e.fetchCandidates(ctx, event, detail)
			if err != nil {
				e.logger.Error("automation rules unavailable, halting cascade",
					zap.String("ticket_id", ticket.ID),
					zap.Int("depth", depth),
					zap.Error(err))
				break
			}
		}

		mutated, fired, next := e.runPass(ctx, working, candidates)
		working = mutated
		total += fired
		if next == "" {
			break
		}
		// An action changed a trigger-bearing field: exactly one follow-up
		// ticket_update pass at the next depth.
		event = domain.RuleTypeTicketUpdate
		detail = next
	}

	e.metrics.RecordDispatch(string(origin), e.now().Sub(start))
	return working, total
}

// runPass evaluates every candidate in order against the accumulating
// ticket, so rules within one pass compose sequentially. It returns the
// trigger detail for a follow-up pass, or empty when no action changed a
// trigger-bearing field.
func (e *Engine) runPass(ctx context.Context, ticket *domain.Ticket, candidates []domain.AutomationRule) (*domain.Ticket, int, domain.TriggerDetail) {
	working := ticket
	fired := 0
	var statusChanged, priorityChanged, assigned bool

	for i := range candidates {
		rule := &candidates[i]
		if !e.evaluator.Evaluate(working, rule.Conditions, rule.ConditionMatch) {
			continue
		}

		mutated, applied := e.executor.Apply(ctx, working, rule.Actions)
		working = mutated
		e.tracker.Record(ctx, rule, working, applied, e.now())
		fired++
		e.metrics.RecordRuleFired(string(rule.RuleType))
		e.logger.Info("automation rule fired",
			zap.String("rule_id", rule.ID),
			zap.String("rule_name", rule.Name),
			zap.String("ticket_id", working.ID),
			zap.Int("actions_applied", len(applied)))

		for _, entry := range applied {
			switch entry.Action {
			case domain.ActivityStatusChanged:
				statusChanged = true
			case domain.ActivityPriorityChanged:
				priorityChanged = true
			case domain.ActivityAssigned:
				assigned = true
			}
		}
	}

	switch {
	case statusChanged:
		return working, fired, domain.TriggerStatusChanged
	case priorityChanged:
		return working, fired, domain.TriggerPriorityChanged
	case assigned:
		return working, fired, domain.TriggerAssigned
	}
	return working, fired, ""
}

func (e *Engine) fetchCandidates(ctx context.Context, event domain.RuleType, detail domain.TriggerDetail) ([]domain.AutomationRule, error) {
	rules, err := e.rules.ListActiveRules(ctx, event)
	if err != nil {
		return nil, err
	}
	return selectCandidates(rules, event, detail), nil
}

// selectCandidates filters inactive and non-matching rules and orders the
// rest ascending by Order, ties broken by ID, so evaluation order is stable
// and deterministic.
func selectCandidates(rules []domain.AutomationRule, event domain.RuleType, detail domain.TriggerDetail) []domain.AutomationRule {
	candidates := make([]domain.AutomationRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive || rule.RuleType != event {
			continue
		}
		// For ticket updates a rule with a trigger only matches its own
		// sub-event; an empty trigger matches any.
		if event == domain.RuleTypeTicketUpdate && rule.Trigger != "" && detail != "" && rule.Trigger != detail {
			continue
		}
		candidates = append(candidates, rule)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Order != candidates[j].Order {
			return candidates[i].Order < candidates[j].Order
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}
