package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	n, err := store.Get(context.Background(), KeyDownloads)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, store.Incr(context.Background(), KeyDownloads))
	require.NoError(t, store.Incr(context.Background(), KeyDownloads))
	require.NoError(t, store.Incr(context.Background(), KeyUploads))

	n, err = store.Get(context.Background(), KeyDownloads)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Get(context.Background(), KeyUploads)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Incr(context.Background(), KeyDownloads)
		}()
	}
	wg.Wait()

	n, err := store.Get(context.Background(), KeyDownloads)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}
