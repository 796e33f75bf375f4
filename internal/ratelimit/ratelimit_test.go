package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemory_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 12, 10, 8, 0, 0, 0, time.UTC)
	m := NewMemory(3, 10*time.Minute)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := m.Allow(ctx, "c1")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
		now = now.Add(time.Minute)
	}

	ok, wait, err := m.Allow(ctx, "c1")
	require.NoError(t, err)
	require.False(t, ok)
	// Oldest attempt at 08:00 leaves the window at 08:10; now is 08:03.
	require.Equal(t, 7*time.Minute, wait)

	ok, _, _ = m.Allow(ctx, "c2")
	require.True(t, ok, "keys are independent")

	now = now.Add(7 * time.Minute)
	ok, _, _ = m.Allow(ctx, "c1")
	require.True(t, ok, "oldest attempt slid out")
	ok, _, _ = m.Allow(ctx, "c1")
	require.False(t, ok)

	m.Reset("c1")
	ok, _, _ = m.Allow(ctx, "c1")
	require.True(t, ok)
}

func TestRedis_SlidingWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, "test:verify:"+uuid.NewString()+":", 2, time.Minute)
	ctx := context.Background()

	ok, _, err := r.Allow(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, _, _ = r.Allow(ctx, "c1")
	require.True(t, ok)
	ok, wait, err := r.Allow(ctx, "c1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, wait, time.Duration(0))
	require.LessOrEqual(t, wait, time.Minute)
}
