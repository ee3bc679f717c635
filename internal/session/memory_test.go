package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LookupAbsent(t *testing.T) {
	store := NewMemoryStore()

	contextID, found, err := store.Lookup(context.Background(), "123")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, contextID)
}

func TestMemoryStore_StoreOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Store(ctx, "123", "thread_1"))
	require.NoError(t, store.Store(ctx, "123", "thread_2"))

	contextID, found, err := store.Lookup(ctx, "123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "thread_2", contextID)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_RejectsBlankKeys(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Store(context.Background(), "", "thread_1"), ErrInvalidKey)
	assert.ErrorIs(t, store.Store(context.Background(), "123", "  "), ErrInvalidKey)
}

func TestMemoryStore_ConcurrentSenders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := fmt.Sprintf("sender-%d", i)
			_ = store.Store(ctx, sender, "ctx-"+sender)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
	contextID, found, err := store.Lookup(ctx, "sender-7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ctx-sender-7", contextID)
}
