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

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewCache(rc, time.Minute), mr
}

func TestCacheSetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, "cache:post:1", map[string]string{"body": "hi"})
	b, ok := c.GetBytes(ctx, "cache:post:1")
	require.True(t, ok)
	assert.JSONEq(t, `{"body":"hi"}`, string(b))

	mr.FastForward(2 * time.Minute)
	_, ok = c.GetBytes(ctx, "cache:post:1")
	assert.False(t, ok)
}

func TestCacheInvalidateByPrefix(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetJSON(ctx, "cache:user:1", 1)
	c.SetJSON(ctx, "cache:user:2", 2)
	c.SetJSON(ctx, "cache:post:1", 3)

	c.InvalidateByPrefix(ctx, "cache:user:")

	_, ok := c.GetBytes(ctx, "cache:user:1")
	assert.False(t, ok)
	_, ok = c.GetBytes(ctx, "cache:user:2")
	assert.False(t, ok)
	_, ok = c.GetBytes(ctx, "cache:post:1")
	assert.True(t, ok)

	c.Delete(ctx, "cache:post:1")
	_, ok = c.GetBytes(ctx, "cache:post:1")
	assert.False(t, ok)
}

func TestNilCacheIsAMiss(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	c.SetJSON(ctx, "k", 1)
	c.Delete(ctx, "k")
	c.InvalidateByPrefix(ctx, "k")
	_, ok := c.GetBytes(ctx, "k")
	assert.False(t, ok)

	_, ok = NewCache(nil, 0).GetBytes(ctx, "k")
	assert.False(t, ok)
}
