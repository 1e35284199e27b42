package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *ExistenceCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, time.Minute)
}

func TestExistenceCacheRememberThenHas(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.False(t, c.Has(ctx, "abc123"))

	require.NoError(t, c.Remember(ctx, "abc123"))
	require.True(t, c.Has(ctx, "abc123"))
}

func TestExistenceCacheForget(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Remember(ctx, "deadbeef"))
	require.True(t, c.Has(ctx, "deadbeef"))

	require.NoError(t, c.Forget(ctx, "deadbeef"))
	require.False(t, c.Has(ctx, "deadbeef"))
}

func TestExistenceCacheHasIsFalseOnError(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}) // nothing listening
	c := NewWithClient(client, time.Minute)

	require.False(t, c.Has(ctx, "whatever"))
}
