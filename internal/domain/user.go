package domain

import "time"

// UserStatus is the account lifecycle state of a requester. Suspended
// accounts cannot authenticate; their existing tickets remain visible to
// agents.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is a requester account, the party on whose behalf tickets are
// opened. Users never appear as automation actors; rule-driven changes are
// attributed to the system.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
