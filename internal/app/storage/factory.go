// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern to ensure related components (job store,
// store directory, lock store) are created with compatible storage backends.
package storage

import (
	"context"
	"fmt"

	"github.com/merchantiq/storesync/internal/config"
	"github.com/merchantiq/storesync/internal/jobs"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/stores"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
// Implementations ensure all components are compatible with each other
// (e.g., all use the database or all live in process memory).
//
// The factory encapsulates the creation of:
// - jobs.Store: Tracks sync job scheduling state
// - stores.Directory: Holds registered store records
// - locks.Store: Backs the distributed lock manager
//
// It also manages the lifecycle of storage resources (e.g., database connections).
type Factory interface {
	// CreateJobStore creates the store for sync job scheduling state.
	// The returned store uses storage appropriate for this factory's type
	// (in-memory or database-backed).
	CreateJobStore(ctx context.Context) (jobs.Store, error)

	// CreateDirectory creates the directory of registered stores.
	// The returned directory uses storage appropriate for this factory's type.
	CreateDirectory(ctx context.Context) (stores.Directory, error)

	// CreateLockStore creates the backing store for the lock manager.
	// When Redis is configured it is used regardless of the job backend,
	// so locks are shared across instances.
	CreateLockStore(ctx context.Context) (locks.Store, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured backend.
// Returns a MemoryFactory for in-process storage or a DatabaseFactory for PostgreSQL.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.GetBackend() {
	case config.StoragePostgres:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageMemory:
		return NewMemoryFactory(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.GetBackend())
	}
}

// newRedisLockStore connects the optional shared Redis lock store.
// Both factories route CreateLockStore here when Redis is configured.
func newRedisLockStore(ctx context.Context, cfg *config.RedisConfig) (*locks.RedisStore, error) {
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve redis password: %w", err)
	}

	store, err := locks.NewRedisStore(ctx, locks.RedisOptions{
		Addr:     cfg.Address,
		Password: password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis lock store: %w", err)
	}

	return store, nil
}
