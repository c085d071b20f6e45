package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const acquireLockSQL = `
INSERT INTO locks (resource_key, holder_id, operation_class, acquired_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (resource_key) DO UPDATE
SET holder_id = EXCLUDED.holder_id,
    operation_class = EXCLUDED.operation_class,
    acquired_at = EXCLUDED.acquired_at,
    expires_at = EXCLUDED.expires_at
WHERE locks.expires_at <= EXCLUDED.acquired_at
RETURNING resource_key, holder_id, operation_class, acquired_at, expires_at
`

const getLockSQL = `
SELECT resource_key, holder_id, operation_class, acquired_at, expires_at
FROM locks
WHERE resource_key = $1 AND expires_at > $2
`

const listLocksSQL = `
SELECT resource_key, holder_id, operation_class, acquired_at, expires_at
FROM locks
WHERE expires_at > $1
ORDER BY resource_key
`

const releaseLockSQL = `DELETE FROM locks WHERE resource_key = $1 AND holder_id = $2`

const clearLockSQL = `DELETE FROM locks WHERE resource_key = $1`

// PostgresStore implements Store on a locks table. Timestamps come from the
// application clock so expiry comparisons never mix database and worker
// clocks; the conditional upsert reclaims expired rows atomically.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a lock store over an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// TryAcquire implements Store.
func (s *PostgresStore) TryAcquire(ctx context.Context, key string, class OperationClass, holderID string, ttl time.Duration) (*Lock, bool, error) {
	// A held row can expire between the failed upsert and the conflict
	// read; one more attempt resolves that window.
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now().UTC()
		row := s.pool.QueryRow(ctx, acquireLockSQL, key, holderID, string(class), now, now.Add(ttl))

		lock, err := scanLock(row)
		if err == nil {
			return lock, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to acquire lock row: %w", err)
		}

		held, err := s.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if held != nil {
			return held, false, nil
		}
	}
	return nil, false, nil
}

// Release implements Store.
func (s *PostgresStore) Release(ctx context.Context, key string, holderID string) error {
	if _, err := s.pool.Exec(ctx, releaseLockSQL, key, holderID); err != nil {
		return fmt.Errorf("failed to release lock row: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Lock, error) {
	row := s.pool.QueryRow(ctx, getLockSQL, key, time.Now().UTC())
	lock, err := scanLock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock row: %w", err)
	}
	return lock, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Lock, error) {
	rows, err := s.pool.Query(ctx, listLocksSQL, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list lock rows: %w", err)
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock row: %w", err)
		}
		out = append(out, *lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lock rows: %w", err)
	}
	return out, nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, clearLockSQL, key); err != nil {
		return fmt.Errorf("failed to clear lock row: %w", err)
	}
	return nil
}

func scanLock(row pgx.Row) (*Lock, error) {
	var (
		lock  Lock
		class string
	)
	if err := row.Scan(&lock.ResourceKey, &lock.HolderID, &class, &lock.AcquiredAt, &lock.ExpiresAt); err != nil {
		return nil, err
	}
	lock.OperationClass = OperationClass(class)
	return &lock, nil
}
