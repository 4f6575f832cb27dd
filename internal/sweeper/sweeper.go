package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/automation"
	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/observability"
)

// Dispatcher is the engine entry point the sweeper fires time_trigger
// events into.
type Dispatcher interface {
	DispatchRules(ctx context.Context, ticket *domain.Ticket, event domain.RuleType, detail domain.TriggerDetail, rules []domain.AutomationRule) (*domain.Ticket, int)
}

// TicketStore lists sweep candidates and persists engine mutations.
type TicketStore interface {
	ListOpenTickets(ctx context.Context) ([]domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
}

// Config controls the sweep cadence.
type Config struct {
	// Spec is a cron expression; defaults to hourly.
	Spec string
	// DefaultTokenTTL is used for cadence labels without a known duration.
	DefaultTokenTTL time.Duration
}

// Sweeper periodically scans open tickets and dispatches a synthetic
// time_trigger event for tickets whose elapsed-time conditions are newly
// satisfied. A de-duplication token per rule/ticket pair keeps a rule from
// firing again for the same ticket within its cadence.
type Sweeper struct {
	cfg       Config
	rules     automation.RuleSource
	tickets   TicketStore
	tokens    TokenStore
	engine    Dispatcher
	evaluator *automation.Evaluator
	metrics   *observability.Metrics
	logger    *zap.Logger
	cron      *cron.Cron
	running   atomic.Bool
	now       func() time.Time
}

// Dependencies bundles the sweeper's collaborators.
type Dependencies struct {
	Rules     automation.RuleSource
	Tickets   TicketStore
	Tokens    TokenStore
	Engine    Dispatcher
	Evaluator *automation.Evaluator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// New constructs a sweeper.
func New(cfg Config, deps Dependencies) *Sweeper {
	if cfg.Spec == "" {
		cfg.Spec = "@hourly"
	}
	if cfg.DefaultTokenTTL <= 0 {
		cfg.DefaultTokenTTL = time.Hour
	}
	return &Sweeper{
		cfg:       cfg,
		rules:     deps.Rules,
		tickets:   deps.Tickets,
		tokens:    deps.Tokens,
		engine:    deps.Engine,
		evaluator: deps.Evaluator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// Start schedules sweep runs on the configured cadence.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() {
		s.Run(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("time-trigger sweeper started", zap.String("spec", s.cfg.Spec))
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Run executes one sweep. Overlapping runs are skipped rather than queued.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sweep already in progress, skipping run")
		return
	}
	defer s.running.Store(false)

	start := s.now()
	rules, err := s.rules.ListActiveRules(ctx, domain.RuleTypeTimeTrigger)
	if err != nil {
		s.logger.Error("sweep aborted: rules unavailable", zap.Error(err))
		return
	}
	if len(rules) == 0 {
		return
	}

	tickets, err := s.tickets.ListOpenTickets(ctx)
	if err != nil {
		s.logger.Error("sweep aborted: tickets unavailable", zap.Error(err))
		return
	}

	dispatched := 0
	for i := range tickets {
		ticket := &tickets[i]
		eligible := s.eligibleRules(ctx, ticket, rules)
		if len(eligible) == 0 {
			continue
		}

		mutated, fired := s.engine.DispatchRules(ctx, ticket, domain.RuleTypeTimeTrigger, "", eligible)
		if fired == 0 {
			continue
		}
		dispatched++
		if err := s.tickets.Update(ctx, mutated); err != nil {
			s.logger.Error("failed to persist swept ticket",
				zap.String("ticket_id", mutated.ID),
				zap.Error(err))
		}
	}

	duration := s.now().Sub(start)
	s.metrics.RecordSweep(len(tickets), dispatched, duration)
	s.logger.Info("sweep completed",
		zap.Int("tickets_checked", len(tickets)),
		zap.Int("dispatches", dispatched),
		zap.Duration("duration", duration))
}

// eligibleRules returns the rules whose conditions currently hold for the
// ticket and whose de-duplication token could be acquired. Tokens are only
// taken for matching rules so an unsatisfied pair is never suppressed once
// it becomes satisfied later.
func (s *Sweeper) eligibleRules(ctx context.Context, ticket *domain.Ticket, rules []domain.AutomationRule) []domain.AutomationRule {
	var eligible []domain.AutomationRule
	for _, rule := range rules {
		if !s.evaluator.Evaluate(ticket, rule.Conditions, rule.ConditionMatch) {
			continue
		}
		acquired, err := s.tokens.Acquire(ctx, rule.ID, ticket.ID, s.tokenTTL(rule.Trigger))
		if err != nil {
			s.logger.Warn("dedup token unavailable, skipping pair",
				zap.String("rule_id", rule.ID),
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			continue
		}
		if !acquired {
			continue
		}
		eligible = append(eligible, rule)
	}
	return eligible
}

func (s *Sweeper) tokenTTL(cadence domain.TriggerDetail) time.Duration {
	switch cadence {
	case domain.TriggerHourly:
		return time.Hour
	case domain.TriggerDaily:
		return 24 * time.Hour
	default:
		return s.cfg.DefaultTokenTTL
	}
}
