package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStore_ResetsOnNewWindow(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	window := time.Minute
	w1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(ctx, "10.0.0.1", w1, window)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	n, err := store.Incr(ctx, "10.0.0.1", w1.Add(window), window)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryCounterStore_KeysAreIndependent(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	w := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _ = store.Incr(ctx, "a", w, time.Minute)
	_, _ = store.Incr(ctx, "a", w, time.Minute)
	n, err := store.Incr(ctx, "b", w, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemoryCounterStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	w := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Incr(ctx, "ip", w, time.Minute)
		}()
	}
	wg.Wait()

	n, err := store.Incr(ctx, "ip", w, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(51), n)
}
