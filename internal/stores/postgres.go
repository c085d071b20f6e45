package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertStoreSQL = `
INSERT INTO stores (id, name, platform, access_token, active, needs_reconnection, last_synced_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, NULL, $6, $6)
ON CONFLICT (id) DO UPDATE
SET name         = EXCLUDED.name,
    platform     = EXCLUDED.platform,
    access_token = EXCLUDED.access_token,
    active       = EXCLUDED.active,
    updated_at   = EXCLUDED.updated_at
`

const getStoreSQL = `
SELECT id, name, platform, access_token, active, needs_reconnection, last_synced_at, created_at, updated_at
FROM stores
WHERE id = $1
`

const listActiveStoresSQL = `
SELECT id, name, platform, access_token, active, needs_reconnection, last_synced_at, created_at, updated_at
FROM stores
WHERE active
ORDER BY id
`

const deactivateStoreSQL = `UPDATE stores SET active = FALSE, updated_at = $2 WHERE id = $1`

const updateCredentialSQL = `
UPDATE stores SET access_token = $2, needs_reconnection = FALSE, updated_at = $3 WHERE id = $1
`

const markReconnectionSQL = `
UPDATE stores SET needs_reconnection = TRUE, updated_at = $2 WHERE id = $1
`

const setLastSyncedSQL = `
UPDATE stores SET last_synced_at = $2, updated_at = $3 WHERE id = $1
`

// PostgresDirectory implements Directory on a stores table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a store directory over an existing
// connection pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Upsert implements Directory.
func (d *PostgresDirectory) Upsert(ctx context.Context, store *Store) error {
	_, err := d.pool.Exec(ctx, upsertStoreSQL,
		store.ID, store.Name, store.Platform, store.AccessToken, store.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert store: %w", err)
	}
	return nil
}

// Get implements Directory.
func (d *PostgresDirectory) Get(ctx context.Context, id string) (*Store, error) {
	store, err := scanStore(d.pool.QueryRow(ctx, getStoreSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	return store, nil
}

// ListActive implements Directory.
func (d *PostgresDirectory) ListActive(ctx context.Context) ([]Store, error) {
	rows, err := d.pool.Query(ctx, listActiveStoresSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var out []Store
	for rows.Next() {
		store, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store row: %w", err)
		}
		out = append(out, *store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate store rows: %w", err)
	}
	return out, nil
}

// Deactivate implements Directory.
func (d *PostgresDirectory) Deactivate(ctx context.Context, id string) error {
	if _, err := d.pool.Exec(ctx, deactivateStoreSQL, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to deactivate store: %w", err)
	}
	return nil
}

// UpdateCredential implements Directory.
func (d *PostgresDirectory) UpdateCredential(ctx context.Context, id string, accessToken string) error {
	tag, err := d.pool.Exec(ctx, updateCredentialSQL, id, accessToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update store credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNeedsReconnection implements Directory.
func (d *PostgresDirectory) MarkNeedsReconnection(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, markReconnectionSQL, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to flag store for reconnection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLastSyncedAt implements Directory.
func (d *PostgresDirectory) SetLastSyncedAt(ctx context.Context, id string, ts time.Time) error {
	tag, err := d.pool.Exec(ctx, setLastSyncedSQL, id, ts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record store sync time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStore(row pgx.Row) (*Store, error) {
	var store Store
	err := row.Scan(&store.ID, &store.Name, &store.Platform, &store.AccessToken,
		&store.Active, &store.NeedsReconnection, &store.LastSyncedAt,
		&store.CreatedAt, &store.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &store, nil
}
