package docstore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/CKThompson00/workflow-automation/pkg/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts Get calls that reach the backing store.
type countingStore struct {
	*docstore.InMemoryStore[string, int]
	gets   atomic.Int32
	putErr error
}

func newCountingStore() *countingStore {
	return &countingStore{InMemoryStore: docstore.NewInMemoryStore[string, int]()}
}

func (s *countingStore) Get(ctx context.Context, key string) (int, error) {
	s.gets.Add(1)
	return s.InMemoryStore.Get(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key string, value int) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.InMemoryStore.Put(ctx, key, value)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Eviction policy works correctly", func(t *testing.T) {
		// Arrange
		backing := newCountingStore()
		for i, k := range []string{"key1", "key2", "key3"} {
			require.NoError(t, backing.InMemoryStore.Put(ctx, k, i+1))
		}
		c, err := docstore.NewCachedStore[string, int](backing, 2)
		require.NoError(t, err)

		// Act: fill the cache.
		v1, _ := c.Get(ctx, "key1")
		v2, _ := c.Get(ctx, "key2")
		assert.Equal(t, 1, v1)
		assert.Equal(t, 2, v2)
		assert.Equal(t, int32(2), backing.gets.Load())

		// A hit makes key1 the most recently used.
		_, _ = c.Get(ctx, "key1")
		assert.Equal(t, int32(2), backing.gets.Load())

		// key3 evicts key2.
		v3, _ := c.Get(ctx, "key3")
		assert.Equal(t, 3, v3)
		assert.Equal(t, int32(3), backing.gets.Load())

		_, _ = c.Get(ctx, "key2")
		assert.Equal(t, int32(4), backing.gets.Load(), "evicted key2 should be fetched again")

		// Assert
		_, _ = c.Get(ctx, "key3")
		assert.Equal(t, int32(4), backing.gets.Load(), "key3 should still be cached")
	})

	t.Run("Put writes through", func(t *testing.T) {
		backing := newCountingStore()
		c, err := docstore.NewCachedStore[string, int](backing, 4)
		require.NoError(t, err)

		require.NoError(t, c.Put(ctx, "a", 7))

		stored, err := backing.InMemoryStore.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 7, stored)

		got, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, int32(0), backing.gets.Load(), "written value should be served from cache")
	})

	t.Run("Failed Put is not cached", func(t *testing.T) {
		backing := newCountingStore()
		backing.putErr = errors.New("write failed")
		c, err := docstore.NewCachedStore[string, int](backing, 4)
		require.NoError(t, err)

		assert.Error(t, c.Put(ctx, "a", 1))

		_, err = c.Get(ctx, "a")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("Invalidate forces a refetch", func(t *testing.T) {
		backing := newCountingStore()
		c, err := docstore.NewCachedStore[string, int](backing, 4)
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, "a", 1))

		c.Invalidate("a")
		_, err = c.Get(ctx, "a")

		require.NoError(t, err)
		assert.Equal(t, int32(1), backing.gets.Load())
	})

	t.Run("Invalid construction", func(t *testing.T) {
		_, err := docstore.NewCachedStore[string, int](nil, 1)
		assert.Error(t, err)
		_, err = docstore.NewCachedStore[string, int](newCountingStore(), 0)
		assert.Error(t, err)
	})
}
