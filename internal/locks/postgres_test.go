package locks

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createLocksTableSQL = `
CREATE TABLE IF NOT EXISTS locks (
    resource_key    TEXT PRIMARY KEY,
    holder_id       TEXT NOT NULL,
    operation_class TEXT NOT NULL,
    acquired_at     TIMESTAMPTZ NOT NULL,
    expires_at      TIMESTAMPTZ NOT NULL
)`

func postgresLockStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("STORESYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set STORESYNC_TEST_POSTGRES_DSN to run Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, createLocksTableSQL)
	require.NoError(t, err)

	return NewPostgresStore(pool)
}

func uniqueResourceKey(prefix string) string {
	return fmt.Sprintf("it-%s-%d", prefix, time.Now().UnixNano())
}

func TestPostgresIntegrationLockLifecycle(t *testing.T) {
	store := postgresLockStore(t)
	ctx := context.Background()
	key := uniqueResourceKey("lifecycle")
	t.Cleanup(func() { _ = store.Clear(context.Background(), key) })

	lock, acquired, err := store.TryAcquire(ctx, key, ClassManualSync, "holder-a", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Equal(t, key, lock.ResourceKey)
	assert.Equal(t, "holder-a", lock.HolderID)

	held, acquired, err := store.TryAcquire(ctx, key, ClassBackgroundSync, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)
	require.NotNil(t, held)
	assert.Equal(t, "holder-a", held.HolderID)
	assert.Equal(t, ClassManualSync, held.OperationClass)

	// Wrong holder cannot release.
	require.NoError(t, store.Release(ctx, key, "holder-b"))
	held, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, held)

	require.NoError(t, store.Release(ctx, key, "holder-a"))
	held, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestPostgresIntegrationLockReclaim(t *testing.T) {
	store := postgresLockStore(t)
	ctx := context.Background()
	key := uniqueResourceKey("reclaim")
	t.Cleanup(func() { _ = store.Clear(context.Background(), key) })

	_, acquired, err := store.TryAcquire(ctx, key, ClassBackgroundSync, "holder-a", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(150 * time.Millisecond)

	held, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, held)

	lock, acquired, err := store.TryAcquire(ctx, key, ClassReconnection, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, "holder-b", lock.HolderID)
}

func TestPostgresIntegrationLockList(t *testing.T) {
	store := postgresLockStore(t)
	ctx := context.Background()
	key := uniqueResourceKey("list")
	t.Cleanup(func() { _ = store.Clear(context.Background(), key) })

	_, acquired, err := store.TryAcquire(ctx, key, ClassManualSync, "holder-a", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	held, err := store.List(ctx)
	require.NoError(t, err)

	var found bool
	for _, l := range held {
		if l.ResourceKey == key {
			found = true
			assert.Equal(t, "holder-a", l.HolderID)
		}
	}
	assert.True(t, found, "expected %s in active lock listing", key)
}
