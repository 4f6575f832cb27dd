package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// TicketActivityRepository encapsulates activity log persistence.
type TicketActivityRepository interface {
	AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error)
}

type ticketActivityRepository struct {
	pool *pgxpool.Pool
}

// NewTicketActivityRepository instantiates repository.
func NewTicketActivityRepository(pool *pgxpool.Pool) TicketActivityRepository {
	return &ticketActivityRepository{pool: pool}
}

func (r *ticketActivityRepository) AppendTicketActivity(ctx context.Context, activity *domain.TicketActivity) error {
	const query = `
        INSERT INTO ticket_activities (ticket_id, actor_id, actor_type, action, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		activity.TicketID,
		activity.ActorID,
		string(activity.ActorType),
		activity.Action,
		activity.OldValue,
		activity.NewValue,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func (r *ticketActivityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	const query = `
        SELECT id, ticket_id, actor_id, actor_type, action, old_value, new_value, created_at
        FROM ticket_activities WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketActivity
	for rows.Next() {
		var activity domain.TicketActivity
		if err := rows.Scan(
			&activity.ID,
			&activity.TicketID,
			&activity.ActorID,
			&activity.ActorType,
			&activity.Action,
			&activity.OldValue,
			&activity.NewValue,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}
