// Package cache keeps derived catalog views in redis between syncs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"

	"github.com/redis/go-redis/v9"
)

const hierarchyKey = "catalog:hierarchy"

// HierarchyCache is a redis-backed catalog.HierarchyCache. Redis failures
// are logged and treated as misses.
type HierarchyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewHierarchyCache(client *redis.Client, ttl time.Duration, logger *logger.Logger) *HierarchyCache {
	return &HierarchyCache{client: client, ttl: ttl, logger: logger}
}

func (c *HierarchyCache) Get(ctx context.Context) ([]catalog.MainNode, bool) {
	data, err := c.client.Get(ctx, hierarchyKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Failed to read hierarchy cache: %v", err)
		return nil, false
	}

	var tree []catalog.MainNode
	if err := json.Unmarshal(data, &tree); err != nil {
		c.logger.Warn("Dropping corrupted hierarchy cache entry: %v", err)
		c.client.Del(ctx, hierarchyKey)
		return nil, false
	}
	return tree, true
}

func (c *HierarchyCache) Set(ctx context.Context, tree []catalog.MainNode) {
	data, err := json.Marshal(tree)
	if err != nil {
		c.logger.Warn("Failed to encode hierarchy: %v", err)
		return
	}
	if err := c.client.Set(ctx, hierarchyKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to write hierarchy cache: %v", err)
	}
}

func (c *HierarchyCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, hierarchyKey).Err(); err != nil {
		c.logger.Warn("Failed to invalidate hierarchy cache: %v", err)
	}
}
