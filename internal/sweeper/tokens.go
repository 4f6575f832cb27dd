package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore hands out per rule/ticket de-duplication tokens. Acquire
// returns true only for the first caller within the TTL window, so a ticket
// is not double-processed when the sweep interval is shorter than the
// rule's own cadence.
type TokenStore interface {
	Acquire(ctx context.Context, ruleID, ticketID string, ttl time.Duration) (bool, error)
}

// RedisTokenStore implements TokenStore with SETNX semantics.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore constructs the store.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Acquire sets the token key if absent.
func (s *RedisTokenStore) Acquire(ctx context.Context, ruleID, ticketID string, ttl time.Duration) (bool, error) {
	key := tokenKey(ruleID, ticketID)
	return s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func tokenKey(ruleID, ticketID string) string {
	return fmt.Sprintf("automation:sweep:%s:%s", ruleID, ticketID)
}

// MemoryTokenStore is an in-process TokenStore for tests and for running
// without Redis. Expired tokens are cleaned up lazily on acquisition.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewMemoryTokenStore constructs the store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Acquire grants the token unless a live one exists for the pair.
func (s *MemoryTokenStore) Acquire(ctx context.Context, ruleID, ticketID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(ruleID, ticketID)
	now := s.now()
	if expiry, held := s.tokens[key]; held && now.Before(expiry) {
		return false, nil
	}
	s.tokens[key] = now.Add(ttl)
	return true, nil
}
