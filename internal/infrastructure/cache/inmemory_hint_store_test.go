package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryHintStore_GetPut(t *testing.T) {
	store := NewInMemoryHintStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "t:settle_payment:k-0")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "t:settle_payment:k-1", "hash-a", time.Hour))

		hash, ok, err := store.Get(ctx, "t:settle_payment:k-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hash-a", hash)
	})

	t.Run("live hint is not overwritten", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "t:settle_payment:k-2", "hash-a", time.Hour))
		require.NoError(t, store.Put(ctx, "t:settle_payment:k-2", "hash-b", time.Hour))

		hash, _, err := store.Get(ctx, "t:settle_payment:k-2")
		require.NoError(t, err)
		assert.Equal(t, "hash-a", hash)
	})
}

func TestInMemoryHintStore_Expiry(t *testing.T) {
	store := NewInMemoryHintStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "k", "hash-a", time.Minute))

	now = now.Add(2 * time.Minute)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "expired hint must be ignored")

	require.NoError(t, store.Put(ctx, "k", "hash-b", time.Minute))
	hash, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hash-b", hash)
}

func TestInMemoryHintStore_Cleanup(t *testing.T) {
	store := NewInMemoryHintStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "short", "h", time.Minute))
	require.NoError(t, store.Put(ctx, "long", "h", time.Hour))
	assert.Equal(t, 2, store.Size())

	now = now.Add(10 * time.Minute)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
}

func TestInMemoryHintStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryHintStore(10 * time.Millisecond)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestInMemoryHintStore_Concurrent(t *testing.T) {
	store := NewInMemoryHintStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Put(ctx, "shared", "hash", time.Hour)
			_, _, _ = store.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	hash, ok, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hash", hash)
}
