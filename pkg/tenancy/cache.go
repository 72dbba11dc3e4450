package tenancy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const treeCacheKey = "tenancy:tree"

// TreeCache is a Redis-backed TreeSource. The unit tree changes rarely and
// is read on every partition resolution, so instances share one serialized
// snapshot instead of re-scanning the companies table.
//
// The cache is an optimization only: any Redis failure falls through to the
// underlying source.
type TreeCache struct {
	source TreeSource
	redis  *redis.Client
	ttl    time.Duration
}

// NewTreeCache wraps a tree source with a Redis snapshot cache.
func NewTreeCache(source TreeSource, client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TreeCache{source: source, redis: client, ttl: ttl}
}

// Tree returns the cached snapshot, loading and caching it on a miss.
func (c *TreeCache) Tree(ctx context.Context) (*Tree, error) {
	cached, err := c.redis.Get(ctx, treeCacheKey).Result()
	if err == nil {
		var tree Tree
		if err := json.Unmarshal([]byte(cached), &tree); err == nil {
			return &tree, nil
		}
		// Corrupt payload: drop it and rebuild.
		c.redis.Del(ctx, treeCacheKey)
	}

	tree, err := c.source.Tree(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tree); err == nil {
		c.redis.Set(ctx, treeCacheKey, data, c.ttl)
	}
	return tree, nil
}

// Invalidate drops the cached snapshot. Called after any tree mutation.
func (c *TreeCache) Invalidate(ctx context.Context) error {
	if err := c.redis.Del(ctx, treeCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tree cache: %w", err)
	}
	return nil
}
