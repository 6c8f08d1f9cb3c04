package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/model"
)

func TestDrainReturnsPendingOldestFirst(t *testing.T) {
	store := newFakeStore()
	for i := 1; i <= 3; i++ {
		err := store.Store(context.Background(), &model.PendingNotification{
			ID: int64(i), UserID: 7, Username: "alice", Message: "m", CreatedAt: int64(i),
		})
		require.NoError(t, err)
	}
	svc := NewRetrievalService(store, zap.NewNop())

	drained, err := svc.Drain(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, drained, 3)
	assert.Equal(t, int64(1), drained[0].ID)
	assert.Equal(t, int64(3), drained[2].ID)
}

func TestDrainIsIdempotent(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Store(context.Background(), &model.PendingNotification{
		ID: 1, UserID: 7, Username: "alice", Message: "once",
	}))
	svc := NewRetrievalService(store, zap.NewNop())

	first, err := svc.Drain(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := svc.Drain(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestDrainEmptyIsNotAnError(t *testing.T) {
	svc := NewRetrievalService(newFakeStore(), zap.NewNop())

	drained, err := svc.Drain(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, drained)
	assert.Empty(t, drained)
}

func TestConcurrentDrainsPartitionEntries(t *testing.T) {
	store := newFakeStore()
	const total = 50
	for i := 1; i <= total; i++ {
		require.NoError(t, store.Store(context.Background(), &model.PendingNotification{
			ID: int64(i), UserID: 7, Username: "alice", Message: "m",
		}))
	}
	svc := NewRetrievalService(store, zap.NewNop())

	var wg sync.WaitGroup
	results := make([][]model.PendingNotification, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			drained, err := svc.Drain(context.Background(), "alice")
			assert.NoError(t, err)
			results[i] = drained
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]int)
	for _, batch := range results {
		for _, p := range batch {
			seen[p.ID]++
		}
	}
	assert.Len(t, seen, total)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "entry %d delivered to more than one drain", id)
	}
}
