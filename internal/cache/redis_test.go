package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/cache"
	"github.com/dom/social-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	c := cache.NewRedisCache(testutil.NewTestRedis(t).Client)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "posts:1:10", []byte(`{"page":1}`), time.Minute))

	got, ok, err := c.Get(ctx, "posts:1:10")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"page":1}`, string(got))
}

func TestRedisCache_TTL(t *testing.T) {
	c := cache.NewRedisCache(testutil.NewTestRedis(t).Client)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "posts:short", []byte("x"), time.Second))

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, "posts:short")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisCache_DeleteByPrefix(t *testing.T) {
	c := cache.NewRedisCache(testutil.NewTestRedis(t).Client)
	ctx := context.Background()

	// Enough keys to force several SCAN pages.
	for i := 0; i < 1200; i++ {
		require.NoError(t, c.Set(ctx, cache.PostListKey(i, 10), []byte("page"), time.Minute))
	}
	require.NoError(t, c.Set(ctx, cache.PostKey(uuid.New()), []byte("post"), time.Minute))
	require.NoError(t, c.Set(ctx, "users:1", []byte("user"), time.Minute))

	removed, err := c.DeleteByPrefix(ctx, cache.PostsPrefix)
	require.NoError(t, err)
	assert.Equal(t, int64(1201), removed)

	for _, key := range []string{cache.PostListKey(0, 10), cache.PostListKey(1199, 10)} {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, fmt.Sprintf("%s should be gone", key))
	}

	_, ok, err := c.Get(ctx, "users:1")
	require.NoError(t, err)
	assert.True(t, ok, "keys outside the prefix survive")

	removed, err = c.DeleteByPrefix(ctx, cache.PostsPrefix)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
