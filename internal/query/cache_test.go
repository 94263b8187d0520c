package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ResponseCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewResponseCache(client, 30*time.Second)
}

func TestResponseCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("/agents", map[string]string{"namespace": "default"})

	var got []string
	require.False(t, c.Get(ctx, key, &got), "expect a miss before any Set")

	c.Set(ctx, key, []string{"a1", "a2"})

	require.True(t, c.Get(ctx, key, &got))
	require.Equal(t, []string{"a1", "a2"}, got)
}

func TestResponseCacheKeyStableUnderFilterOrder(t *testing.T) {
	a := Key("/capabilities", map[string]string{"name": "read_file", "namespace": "default"})
	b := Key("/capabilities", map[string]string{"namespace": "default", "name": "read_file"})
	require.Equal(t, a, b)
}

func TestResponseCacheInvalidateAllClears(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key("/agents", nil)
	c.Set(ctx, key, []string{"a1"})

	c.InvalidateAll(ctx)

	var got []string
	require.False(t, c.Get(ctx, key, &got), "expect invalidation to clear all cached responses")
}
