package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	job := &SyncJob{
		StoreID:   "store-1",
		Priority:  PriorityHigh,
		Status:    StatusPending,
		NextRunAt: now,
	}
	require.NoError(t, store.Upsert(ctx, job))

	got, err := store.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-1", got.StoreID)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, now, got.UpdatedAt)

	// Mutating the returned copy must not touch the stored job.
	got.Status = StatusPaused
	again, err := store.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdate(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Update(ctx, &SyncJob{StoreID: "store-1", Status: StatusRunning})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Upsert(ctx, &SyncJob{StoreID: "store-1", Status: StatusPending}))
	require.NoError(t, store.Update(ctx, &SyncJob{StoreID: "store-1", Status: StatusRunning}))

	got, err := store.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	// Deleting an absent job is a no-op.
	require.NoError(t, store.Delete(ctx, "store-1"))

	require.NoError(t, store.Upsert(ctx, &SyncJob{StoreID: "store-1", Status: StatusPending}))
	require.NoError(t, store.Delete(ctx, "store-1"))

	_, err := store.Get(ctx, "store-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncJob{StoreID: "store-b", Status: StatusPending}))
	require.NoError(t, store.Upsert(ctx, &SyncJob{StoreID: "store-a", Status: StatusPaused}))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "store-a", all[0].StoreID)
	assert.Equal(t, "store-b", all[1].StoreID)
}

func TestMemoryStoreDue(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	seed := []SyncJob{
		{StoreID: "store-low", Priority: PriorityLow, Status: StatusPending, NextRunAt: now.Add(-3 * time.Minute)},
		{StoreID: "store-high", Priority: PriorityHigh, Status: StatusCompleted, NextRunAt: now.Add(-time.Minute)},
		{StoreID: "store-med", Priority: PriorityMedium, Status: StatusFailed, NextRunAt: now.Add(-2 * time.Minute)},
		{StoreID: "store-future", Priority: PriorityHigh, Status: StatusPending, NextRunAt: now.Add(time.Hour)},
		{StoreID: "store-paused", Priority: PriorityHigh, Status: StatusPaused, NextRunAt: now.Add(-5 * time.Minute)},
		{StoreID: "store-running", Priority: PriorityHigh, Status: StatusRunning, NextRunAt: now.Add(-5 * time.Minute)},
	}
	for i := range seed {
		require.NoError(t, store.Upsert(ctx, &seed[i]))
	}

	due, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 3)

	// Priority wins over how overdue a job is.
	assert.Equal(t, "store-high", due[0].StoreID)
	assert.Equal(t, "store-med", due[1].StoreID)
	assert.Equal(t, "store-low", due[2].StoreID)
}

func TestMemoryStoreDueTiesBreakOnNextRunAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SyncJob{
		StoreID: "store-later", Priority: PriorityHigh, Status: StatusPending, NextRunAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.Upsert(ctx, &SyncJob{
		StoreID: "store-earlier", Priority: PriorityHigh, Status: StatusPending, NextRunAt: now.Add(-2 * time.Minute),
	}))

	due, err := store.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "store-earlier", due[0].StoreID)
	assert.Equal(t, "store-later", due[1].StoreID)
}
