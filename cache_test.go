package linkql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "todo:select_one:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "todo:select_all:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "student:select_all:c", []byte("3"), 0))
	assert.Equal(t, 3, c.Len())

	v, err = c.Get(ctx, "todo:select_one:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(time.Minute)
	v, err = c.Get(ctx, "todo:select_one:a")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.DeletePrefix(ctx, CacheKey{Table: "todo"}.Prefix()))
	v, _ = c.Get(ctx, "todo:select_all:b")
	assert.Nil(t, v)
	v, _ = c.Get(ctx, "student:select_all:c")
	assert.Equal(t, []byte("3"), v)

	require.NoError(t, c.Delete(ctx, "student:select_all:c"))
	assert.Zero(t, c.Len())

	require.NoError(t, c.Set(ctx, "x", []byte("x"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}

func TestCacheKey(t *testing.T) {
	k := CacheKey{Table: "student", Operation: "select_all", Request: "81a3"}
	assert.Equal(t, "student:select_all:81a3", k.String())
	assert.Equal(t, "student:", k.Prefix())
}
