package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-automation/internal/domain"
	"github.com/spec-kit/ticket-automation/internal/repository"
)

// PoolResolver resolves the target of an automation assign action. The
// target is tried as an agent ID first and then as a group name, in which
// case a member is picked deterministically by hashing the ticket ID, so
// the same ticket always lands on the same agent for a given pool.
type PoolResolver struct {
	agents repository.AgentRepository
	groups repository.GroupRepository
}

// NewPoolResolver constructs the resolver.
func NewPoolResolver(agents repository.AgentRepository, groups repository.GroupRepository) *PoolResolver {
	return &PoolResolver{agents: agents, groups: groups}
}

// Resolve returns the agent ID the ticket should be assigned to.
func (r *PoolResolver) Resolve(ctx context.Context, target string, ticket *domain.Ticket) (string, error) {
	// Agent IDs are UUIDs; pool names are not, so skip the agent lookup
	// for anything that cannot be an ID.
	if uuid.Validate(target) == nil {
		agent, err := r.agents.GetByID(ctx, target)
		if err == nil {
			if !agent.Active {
				return "", fmt.Errorf("agent %s inactive", target)
			}
			return agent.ID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", err
		}
	}

	group, err := r.groups.GetByName(ctx, target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no agent or pool named %q", target)
		}
		return "", err
	}
	if !group.IsActive {
		return "", fmt.Errorf("pool %q inactive", target)
	}

	members, err := r.agents.ListActiveByGroup(ctx, group.ID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", fmt.Errorf("pool %q has no active agents", target)
	}
	return members[selectIndex(ticket.ID, len(members))].ID, nil
}

func selectIndex(key string, length int) int {
	if length == 0 {
		return 0
	}
	sum := 0
	for _, ch := range key {
		sum += int(ch)
	}
	return sum % length
}
