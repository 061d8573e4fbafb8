package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/types"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func TestFeaturedCache_MissSetHitInvalidate(t *testing.T) {
	_, rdb := newMiniRedis(t)
	c := NewFeaturedCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetFeatured(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	want := []types.Project{{ID: 1, Title: "Tesis de álgebra", Status: types.ProjectStatusFeatured, Tags: []string{"algebra"}}}
	require.NoError(t, c.SetFeatured(ctx, want))

	got, ok, err := c.GetFeatured(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, want[0].ID, got[0].ID)
	require.Equal(t, want[0].Title, got[0].Title)

	require.NoError(t, c.InvalidateFeatured(ctx))
	_, ok, err = c.GetFeatured(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFeaturedCache_EmptySetIsAHit(t *testing.T) {
	_, rdb := newMiniRedis(t)
	c := NewFeaturedCache(rdb, time.Minute)

	require.NoError(t, c.SetFeatured(context.Background(), nil))
	got, ok, err := c.GetFeatured(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got)
}

func TestFeaturedCache_Expires(t *testing.T) {
	s, rdb := newMiniRedis(t)
	c := NewFeaturedCache(rdb, time.Minute)

	require.NoError(t, c.SetFeatured(context.Background(), []types.Project{{ID: 7}}))
	s.FastForward(2 * time.Minute)

	_, ok, err := c.GetFeatured(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFeaturedCache_CorruptPayloadIsAMiss(t *testing.T) {
	s, rdb := newMiniRedis(t)
	c := NewFeaturedCache(rdb, time.Minute)
	require.NoError(t, s.Set(featuredKey, "{not json"))

	_, ok, err := c.GetFeatured(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, s.Exists(featuredKey))
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	_, rdb := newMiniRedis(t)
	limiter := NewRateLimiter(rdb, 1, 3)
	fixed := time.UnixMilli(1_700_000_000_000)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i)
	}

	allowed, wait, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Second, wait)

	allowed, _, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, allowed, "buckets are per key")
}

func TestRateLimiter_Refills(t *testing.T) {
	_, rdb := newMiniRedis(t)
	limiter := NewRateLimiter(rdb, 2, 1)
	now := time.UnixMilli(1_700_000_000_000)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, allowed)

	now = now.Add(500 * time.Millisecond)
	allowed, _, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiter_DisabledAllowsEverything(t *testing.T) {
	var limiter *RateLimiter
	allowed, _, err := limiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, allowed)

	_, rdb := newMiniRedis(t)
	allowed, _, err = NewRateLimiter(rdb, 0, 0).Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, allowed)
}
