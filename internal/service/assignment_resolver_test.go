package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-automation/internal/domain"
)

type memGroupRepo struct {
	groups map[string]*domain.Group
}

func (r *memGroupRepo) Create(ctx context.Context, group *domain.Group) error { return nil }

func (r *memGroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	for _, group := range r.groups {
		if group.ID == id {
			return group, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memGroupRepo) GetByName(ctx context.Context, name string) (*domain.Group, error) {
	group, ok := r.groups[name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return group, nil
}

func (r *memGroupRepo) List(ctx context.Context) ([]domain.Group, error) { return nil, nil }

func poolFixture() (*PoolResolver, *memAgentRepo) {
	groupID := "g-senior"
	agents := &memAgentRepo{agents: map[string]*domain.Agent{
		"11111111-1111-4111-8111-111111111111": {
			ID: "11111111-1111-4111-8111-111111111111", GroupID: &groupID, Active: true,
		},
		"22222222-2222-4222-8222-222222222222": {
			ID: "22222222-2222-4222-8222-222222222222", GroupID: &groupID, Active: true,
		},
	}}
	groups := &memGroupRepo{groups: map[string]*domain.Group{
		"senior_agent_pool": {ID: groupID, Name: "senior_agent_pool", IsActive: true},
		"mothballed_pool":   {ID: "g-old", Name: "mothballed_pool", IsActive: false},
	}}
	return NewPoolResolver(agents, groups), agents
}

func TestResolveDirectAgentID(t *testing.T) {
	resolver, _ := poolFixture()

	id, err := resolver.Resolve(context.Background(), "11111111-1111-4111-8111-111111111111", &domain.Ticket{ID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", id)
}

func TestResolvePoolIsDeterministicPerTicket(t *testing.T) {
	resolver, _ := poolFixture()
	ticket := &domain.Ticket{ID: "t-42"}

	first, err := resolver.Resolve(context.Background(), "senior_agent_pool", ticket)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "senior_agent_pool", ticket)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveFailures(t *testing.T) {
	resolver, agents := poolFixture()
	ticket := &domain.Ticket{ID: "t-1"}

	_, err := resolver.Resolve(context.Background(), "no_such_pool", ticket)
	assert.Error(t, err)

	_, err = resolver.Resolve(context.Background(), "mothballed_pool", ticket)
	assert.Error(t, err)

	for _, agent := range agents.agents {
		agent.Active = false
	}
	_, err = resolver.Resolve(context.Background(), "senior_agent_pool", ticket)
	assert.Error(t, err)
}
