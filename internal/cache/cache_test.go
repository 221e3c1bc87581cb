package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-bridge/internal/cache"
)

func TestSeenRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	seen, err := c.Seen(ctx, "dev", "abc@list.test")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, c.MarkSeen(ctx, "dev", "abc@list.test", false))

	seen, err = c.Seen(ctx, "dev", "abc@list.test")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMarkSeenTwiceKeepsMessageSeen(t *testing.T) {
	ctx := context.Background()
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MarkSeen(ctx, "dev", "abc@list.test", true))
	require.NoError(t, c.MarkSeen(ctx, "dev", "abc@list.test", false))

	seen, err := c.Seen(ctx, "dev", "abc@list.test")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MarkSeen(ctx, "dev", "old@list.test", false))
	require.NoError(t, c.Prune(ctx, -time.Second))

	seen, err := c.Seen(ctx, "dev", "old@list.test")
	require.NoError(t, err)
	assert.False(t, seen)
}
