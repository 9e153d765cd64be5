package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBlacklistInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewTokenBlacklist(nil)
	b.now = func() time.Time { return now }

	b.Revoke(ctx, "a", now.Add(time.Minute))
	b.Revoke(ctx, "stale", now.Add(-time.Minute))
	assert.True(t, b.IsRevoked(ctx, "a"))
	assert.False(t, b.IsRevoked(ctx, "stale"))
	assert.False(t, b.IsRevoked(ctx, "b"))

	now = now.Add(2 * time.Minute)
	assert.False(t, b.IsRevoked(ctx, "a"))
	assert.Empty(t, b.entries)
}

func TestTokenBlacklistRedis(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	b := NewTokenBlacklist(rc)
	b.Revoke(ctx, "a", time.Now().Add(time.Minute))
	assert.True(t, b.IsRevoked(ctx, "a"))
	assert.True(t, mr.Exists(blacklistKeyPrefix+"a"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, b.IsRevoked(ctx, "a"))
}
