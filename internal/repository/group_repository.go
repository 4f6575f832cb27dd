package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

// GroupRepository encapsulates group persistence.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id string) (*domain.Group, error)
	GetByName(ctx context.Context, name string) (*domain.Group, error)
	List(ctx context.Context) ([]domain.Group, error)
}

type groupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository instantiates repository.
func NewGroupRepository(pool *pgxpool.Pool) GroupRepository {
	return &groupRepository{pool: pool}
}

const groupColumns = `id, name, description, is_active, created_at, updated_at`

func (r *groupRepository) Create(ctx context.Context, group *domain.Group) error {
	const query = `
        INSERT INTO groups (name, description, is_active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, group.Name, group.Description, group.IsActive).
		Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
}

func (r *groupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *groupRepository) GetByName(ctx context.Context, name string) (*domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE name=$1`
	return r.fetchSingle(ctx, query, name)
}

func (r *groupRepository) List(ctx context.Context) ([]domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Group
	for rows.Next() {
		var group domain.Group
		if err := scanGroup(rows, &group); err != nil {
			return nil, err
		}
		result = append(result, group)
	}
	return result, rows.Err()
}

func (r *groupRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Group, error) {
	var group domain.Group
	if err := scanGroup(r.pool.QueryRow(ctx, query, arg), &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func scanGroup(row pgx.Row, group *domain.Group) error {
	return row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&group.IsActive,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
}
