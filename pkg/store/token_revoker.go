package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revocationKeyPrefix = "messenger:revoked:"
	revocationTimeout   = 3 * time.Second
)

// TokenRevoker remembers logged-out token ids (jti) until the token would
// have expired anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryTokenRevoker is a process-local revoker for single-instance and dev setups.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryTokenRevoker builds an empty in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{expires: make(map[string]time.Time), now: time.Now}
}

// Revoke records tokenID until now+ttl. Non-positive ttls are ignored since
// such tokens no longer verify.
func (r *MemoryTokenRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, until := range r.expires {
		if now.After(until) {
			delete(r.expires, id)
		}
	}
	r.expires[tokenID] = now.Add(ttl)
	return nil
}

// IsRevoked reports whether tokenID is still on the revocation list.
func (r *MemoryTokenRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.expires[tokenID]
	if ok && r.now().After(until) {
		delete(r.expires, tokenID)
		return false, nil
	}
	return ok, nil
}

// RedisTokenRevoker shares the revocation list between instances. Entries
// expire through Redis TTLs.
type RedisTokenRevoker struct {
	client *redis.Client
}

// NewRedisTokenRevoker builds a revoker on an existing client.
func NewRedisTokenRevoker(client *redis.Client) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client}
}

// Revoke stores tokenID with the remaining token lifetime as TTL.
func (r *RedisTokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, revocationTimeout)
	defer cancel()
	if err := r.client.Set(ctx, revocationKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has a live revocation entry.
func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, revocationTimeout)
	defer cancel()
	n, err := r.client.Exists(ctx, revocationKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
