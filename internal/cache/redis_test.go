package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchyCacheRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	c := NewHierarchyCache(client, time.Minute, logger.NewNop())
	c.Invalidate(ctx)

	_, ok := c.Get(ctx)
	assert.False(t, ok)

	tree := []catalog.MainNode{{DisplayMain: "Bútor", ProductCount: 3, Children: []catalog.Node{{Name: "Szék", ProductCount: 3}}}}
	c.Set(ctx, tree)

	got, ok := c.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, tree, got)

	c.Invalidate(ctx)
	_, ok = c.Get(ctx)
	assert.False(t, ok)
}

func TestHierarchyCacheUnavailableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	c := NewHierarchyCache(client, time.Minute, logger.NewNop())
	ctx := context.Background()

	c.Set(ctx, []catalog.MainNode{{DisplayMain: "x"}})
	_, ok := c.Get(ctx)
	assert.False(t, ok)
	c.Invalidate(ctx)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
