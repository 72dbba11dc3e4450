package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	tree  *Tree
	calls int
	err   error
}

func (c *countingSource) Tree(ctx context.Context) (*Tree, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.tree, nil
}

func setupCache(t *testing.T, source TreeSource) (*TreeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTreeCache(source, client, time.Minute), mr
}

func TestTreeCache_CachesSnapshot(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{tree: mediaGroupTree()}
	cache, _ := setupCache(t, source)

	tree, err := cache.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 5)
	assert.Equal(t, 1, source.calls)

	// Second read is served from Redis.
	tree, err = cache.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 5)
	assert.Equal(t, 1, source.calls)
}

func TestTreeCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{tree: mediaGroupTree()}
	cache, _ := setupCache(t, source)

	_, err := cache.Tree(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx))

	_, err = cache.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestTreeCache_CorruptPayloadRebuilds(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{tree: mediaGroupTree()}
	cache, mr := setupCache(t, source)

	require.NoError(t, mr.Set(treeCacheKey, "{not json"))

	tree, err := cache.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 5)
	assert.Equal(t, 1, source.calls)
}

func TestTreeCache_SourceErrorPropagates(t *testing.T) {
	source := &countingSource{err: errors.New("db down")}
	cache, _ := setupCache(t, source)

	_, err := cache.Tree(context.Background())
	assert.Error(t, err)
}
