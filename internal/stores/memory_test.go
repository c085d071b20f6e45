package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirectory(t *testing.T) (*MemoryDirectory, time.Time) {
	t.Helper()
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	dir := NewMemoryDirectory(WithMemoryClock(func() time.Time { return now }))
	return dir, now
}

func TestMemoryDirectoryUpsert(t *testing.T) {
	t.Parallel()

	t.Run("creates a store", func(t *testing.T) {
		t.Parallel()
		dir, now := testDirectory(t)
		ctx := context.Background()

		require.NoError(t, dir.Upsert(ctx, &Store{
			ID:          "store-1",
			Name:        "Alpine Outfitters",
			Platform:    "shopware",
			AccessToken: "token-1",
			Active:      true,
		}))

		got, err := dir.Get(ctx, "store-1")
		require.NoError(t, err)
		assert.Equal(t, "Alpine Outfitters", got.Name)
		assert.Equal(t, "shopware", got.Platform)
		assert.True(t, got.Active)
		assert.False(t, got.NeedsReconnection)
		assert.Nil(t, got.LastSyncedAt)
		assert.Equal(t, now, got.CreatedAt)
		assert.Equal(t, now, got.UpdatedAt)
	})

	t.Run("re-registration preserves sync bookkeeping", func(t *testing.T) {
		t.Parallel()
		dir, now := testDirectory(t)
		ctx := context.Background()

		require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", Name: "Old", AccessToken: "t1", Active: true}))
		require.NoError(t, dir.SetLastSyncedAt(ctx, "store-1", now.Add(-time.Hour)))
		require.NoError(t, dir.MarkNeedsReconnection(ctx, "store-1"))

		require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", Name: "New", AccessToken: "t2", Active: true}))

		got, err := dir.Get(ctx, "store-1")
		require.NoError(t, err)
		assert.Equal(t, "New", got.Name)
		assert.Equal(t, "t2", got.AccessToken)
		require.NotNil(t, got.LastSyncedAt)
		assert.Equal(t, now.Add(-time.Hour), *got.LastSyncedAt)
		assert.True(t, got.NeedsReconnection)
		assert.Equal(t, now, got.CreatedAt)
	})
}

func TestMemoryDirectoryGetMissing(t *testing.T) {
	t.Parallel()
	dir, _ := testDirectory(t)

	_, err := dir.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDirectoryListActive(t *testing.T) {
	t.Parallel()
	dir, _ := testDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-b", Active: true}))
	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-a", Active: true}))
	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-c", Active: false}))

	active, err := dir.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "store-a", active[0].ID)
	assert.Equal(t, "store-b", active[1].ID)
}

func TestMemoryDirectoryDeactivate(t *testing.T) {
	t.Parallel()
	dir, _ := testDirectory(t)
	ctx := context.Background()

	// Absent store is a no-op.
	require.NoError(t, dir.Deactivate(ctx, "store-1"))

	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", Active: true}))
	require.NoError(t, dir.Deactivate(ctx, "store-1"))

	got, err := dir.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestMemoryDirectoryUpdateCredential(t *testing.T) {
	t.Parallel()
	dir, _ := testDirectory(t)
	ctx := context.Background()

	require.ErrorIs(t, dir.UpdateCredential(ctx, "store-1", "t2"), ErrNotFound)

	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", AccessToken: "t1", Active: true}))
	require.NoError(t, dir.MarkNeedsReconnection(ctx, "store-1"))

	require.NoError(t, dir.UpdateCredential(ctx, "store-1", "t2"))

	got, err := dir.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, "t2", got.AccessToken)
	assert.False(t, got.NeedsReconnection, "fresh credential clears the reconnection flag")
}

func TestMemoryDirectoryMarkNeedsReconnection(t *testing.T) {
	t.Parallel()
	dir, _ := testDirectory(t)
	ctx := context.Background()

	require.ErrorIs(t, dir.MarkNeedsReconnection(ctx, "store-1"), ErrNotFound)

	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", Active: true}))
	require.NoError(t, dir.MarkNeedsReconnection(ctx, "store-1"))
	// Flagging twice is a no-op, not an error.
	require.NoError(t, dir.MarkNeedsReconnection(ctx, "store-1"))

	got, err := dir.Get(ctx, "store-1")
	require.NoError(t, err)
	assert.True(t, got.NeedsReconnection)
}

func TestMemoryDirectorySetLastSyncedAt(t *testing.T) {
	t.Parallel()
	dir, now := testDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", Active: true}))
	require.NoError(t, dir.SetLastSyncedAt(ctx, "store-1", now))

	got, err := dir.Get(ctx, "store-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.Equal(t, now, *got.LastSyncedAt)
}
