package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sty1228/hyperliquid-sentiment-trader/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(context.Background(), config.RedisConfig{Enabled: false})
	cache := NewCache(client, "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	assert.NoError(t, cache.SetIndexed(ctx, "idx", "key", "value", 0))
	assert.NoError(t, cache.Delete(ctx, "key"))

	members, err := cache.IndexMembers(ctx, "idx")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCache_Live(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" || testing.Short() {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, config.RedisConfig{Enabled: true, Host: host, Port: "6379"})
	require.NoError(t, err)
	defer client.Close()

	cache := NewCache(client, "test:"+time.Now().Format("150405.000"))

	type payload struct {
		Generation uint64 `json:"generation"`
	}

	require.NoError(t, cache.SetIndexed(ctx, "idx", "a", payload{Generation: 7}, time.Minute))

	var got payload
	found, err := cache.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), got.Generation)

	members, err := cache.IndexMembers(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, members)

	require.NoError(t, cache.Delete(ctx, "a"))
	found, err = cache.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRateLimiter_DisabledAllows(t *testing.T) {
	client, _ := New(context.Background(), config.RedisConfig{Enabled: false})
	limiter := NewRateLimiter(client, "test")

	allowed, remaining, err := limiter.Allow(context.Background(), RateLimitConfig{Key: "api:x", Limit: 1, Window: time.Second})
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestRateLimiter_Live(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" || testing.Short() {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, config.RedisConfig{Enabled: true, Host: host, Port: "6379"})
	require.NoError(t, err)
	defer client.Close()

	limiter := NewRateLimiter(client, "test:"+time.Now().Format("150405.000"))
	cfg := RateLimitConfig{Key: "api:127.0.0.1", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, _, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
}
