package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// AutomationRuleRepository encapsulates automation rule persistence.
type AutomationRuleRepository interface {
	Create(ctx context.Context, rule *domain.AutomationRule) error
	Update(ctx context.Context, rule *domain.AutomationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.AutomationRule, error)
	List(ctx context.Context, includeInactive bool) ([]domain.AutomationRule, error)
	ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error)
	IncrementRuleExecution(ctx context.Context, ruleID string, executedAt time.Time) error
}

type automationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewAutomationRuleRepository instantiates repository.
func NewAutomationRuleRepository(pool *pgxpool.Pool) AutomationRuleRepository {
	return &automationRuleRepository{pool: pool}
}

const ruleColumns = `id, name, description, rule_type, trigger_detail, condition_match,
               conditions, actions, is_active, rule_order, execution_count, last_executed_at,
               created_at, updated_at`

func (r *automationRuleRepository) Create(ctx context.Context, rule *domain.AutomationRule) error {
	const query = `
        INSERT INTO automation_rules (name, description, rule_type, trigger_detail, condition_match, conditions, actions, is_active, rule_order)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, execution_count, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.RuleType,
		rule.Trigger,
		rule.ConditionMatch,
		rule.Conditions,
		rule.Actions,
		rule.IsActive,
		rule.Order,
	).Scan(&rule.ID, &rule.ExecutionCount, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *automationRuleRepository) Update(ctx context.Context, rule *domain.AutomationRule) error {
	const query = `
        UPDATE automation_rules SET name=$1, description=$2, rule_type=$3, trigger_detail=$4,
            condition_match=$5, conditions=$6, actions=$7, is_active=$8, rule_order=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Description,
		rule.RuleType,
		rule.Trigger,
		rule.ConditionMatch,
		rule.Conditions,
		rule.Actions,
		rule.IsActive,
		rule.Order,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *automationRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *automationRuleRepository) GetByID(ctx context.Context, id string) (*domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id=$1`
	var rule domain.AutomationRule
	if err := scanRule(r.pool.QueryRow(ctx, query, id), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *automationRuleRepository) List(ctx context.Context, includeInactive bool) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY rule_order ASC, id ASC`
	return r.fetchMany(ctx, query)
}

// ListActiveRules returns the active rules of one type in dispatch order.
func (r *automationRuleRepository) ListActiveRules(ctx context.Context, ruleType domain.RuleType) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE is_active AND rule_type=$1 ORDER BY rule_order ASC, id ASC`
	return r.fetchMany(ctx, query, ruleType)
}

func (r *automationRuleRepository) IncrementRuleExecution(ctx context.Context, ruleID string, executedAt time.Time) error {
	const query = `UPDATE automation_rules SET execution_count=execution_count+1, last_executed_at=$1 WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, executedAt, ruleID)
	return err
}

func (r *automationRuleRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AutomationRule
	for rows.Next() {
		var rule domain.AutomationRule
		if err := scanRule(rows, &rule); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanRule(row pgx.Row, rule *domain.AutomationRule) error {
	return row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.RuleType,
		&rule.Trigger,
		&rule.ConditionMatch,
		&rule.Conditions,
		&rule.Actions,
		&rule.IsActive,
		&rule.Order,
		&rule.ExecutionCount,
		&rule.LastExecutedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
}
