package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *LocalCache {
	t.Helper()
	c, err := NewCache(Config{GCInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestKVSetGet(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVExpiry(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVDelAndExists(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Del(ctx, "k"))
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestZSetRevRange(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "rank", 10, "pair:1:2"))
	require.NoError(t, c.ZAdd(ctx, "rank", 30, "pair:1:3"))
	require.NoError(t, c.ZAdd(ctx, "rank", 20, "pair:2:3"))

	top, err := c.ZRevRange(ctx, "rank", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"pair:1:3", "pair:2:3"}, top)

	all, err := c.ZRevRange(ctx, "rank", 0, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	score, err := c.ZScore(ctx, "rank", "pair:2:3")
	require.NoError(t, err)
	assert.Equal(t, 20.0, score)

	_, err = c.ZScore(ctx, "rank", "pair:9:9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZAddUpdatesScore(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "rank", 10, "m"))
	require.NoError(t, c.ZAdd(ctx, "rank", 50, "m"))
	score, err := c.ZScore(ctx, "rank", "m")
	require.NoError(t, err)
	assert.Equal(t, 50.0, score)
}
