package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestNewClient_Enabled(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: true,
			Host:    mr.Host(),
			Port:    mr.Port(),
		},
	}

	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.Enabled())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	cfg := FMPRateLimit(5)

	// When Redis is disabled, all requests should be allowed
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Expected request to be allowed when Redis disabled")
	}
	if remaining != cfg.Limit {
		t.Errorf("Expected remaining = %d, got %d", cfg.Limit, remaining)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "test")
	ctx := context.Background()
	cfg := RateLimitConfig{Key: "fmp", Limit: 2, Window: time.Minute}

	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _, err = limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed, "third request inside the window must be denied")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client, "test")
	cfg := RateLimitConfig{Key: "wait", Limit: 1, Window: time.Minute}

	require.NoError(t, limiter.Wait(context.Background(), cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx, cfg), context.DeadlineExceeded)
}

func TestFMPRateLimit(t *testing.T) {
	assert.Equal(t, 5, FMPRateLimit(5).Limit)
	assert.Equal(t, 2, FMPRateLimit(2.7).Limit)
	assert.Equal(t, 1, FMPRateLimit(0.5).Limit)
	assert.Equal(t, time.Second, FMPRateLimit(1).Window)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")

	// When Redis is disabled, cache operations should be no-ops
	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
	assert.NoError(t, cache.Set(context.Background(), "key", "v", time.Minute))
}

func TestCache_RoundTrip(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client, "vc")
	ctx := context.Background()

	type payload struct {
		Symbol string  `json:"symbol"`
		PE     float64 `json:"pe"`
	}

	var got payload
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "k", payload{Symbol: "ACME", PE: 5.5}, time.Minute))
	assert.True(t, mr.Exists("vc:cache:k"))

	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Symbol: "ACME", PE: 5.5}, got)

	mr.FastForward(2 * time.Minute)
	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found, "entry must expire after its TTL")
}

func TestCache_Bytes(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client, "vc")
	ctx := context.Background()

	require.NoError(t, cache.SetBytes(ctx, "raw", []byte(`[1,2]`), time.Minute))
	data, found, err := cache.GetBytes(ctx, "raw")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1,2]`, string(data))

	require.NoError(t, cache.Delete(ctx, "raw"))
	_, found, err = cache.GetBytes(ctx, "raw")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{
			name:     "ResponseKey",
			fn:       func() string { return ResponseKey("fmp", "https://example.test/a") },
			expected: "resp:fmp:",
		},
		{
			name:     "EvaluationKey",
			fn:       func() string { return EvaluationKey("ACME", "2019-06-03", "abc") },
			expected: "eval:ACME:2019-06-03:abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got[:len(tt.expected)] != tt.expected {
				t.Errorf("got %q, want prefix %q", got, tt.expected)
			}
		})
	}

	assert.Len(t, ResponseKey("fmp", "x"), len("resp:fmp:")+40)
	assert.NotEqual(t, ResponseKey("fmp", "x"), ResponseKey("fmp", "y"))
}
