package domain

import "time"

// Group is a team of agents. Its name doubles as the pool identifier for
// automation assign actions targeting a pool rather than a specific agent.
type Group struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
