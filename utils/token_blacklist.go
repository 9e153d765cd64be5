package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "token:revoked:"

// TokenBlacklist remembers revoked token IDs until the token would have expired anyway.
// It uses Redis when a client is configured and process memory otherwise.
type TokenBlacklist struct {
	rc  *redis.Client
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewTokenBlacklist creates a blacklist backed by rc, or by memory when rc is nil.
func NewTokenBlacklist(rc *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rc: rc, now: time.Now, entries: map[string]time.Time{}}
}

// Revoke blacklists id until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, id string, expiresAt time.Time) {
	ttl := expiresAt.Sub(b.now())
	if id == "" || ttl <= 0 {
		return
	}
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := b.rc.Set(ctx, blacklistKeyPrefix+id, "1", ttl).Err(); err != nil {
			Sugar.Warnf("token revoke failed id=%s err=%v", id, err)
		}
		return
	}
	b.mu.Lock()
	b.entries[id] = expiresAt
	b.mu.Unlock()
}

// IsRevoked reports whether id was revoked. Redis errors count as not revoked.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, id string) bool {
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := b.rc.Exists(ctx, blacklistKeyPrefix+id).Result()
		return err == nil && n > 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for k, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, k)
		}
	}
	_, ok := b.entries[id]
	return ok
}
