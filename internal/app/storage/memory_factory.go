package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/merchantiq/storesync/internal/config"
	"github.com/merchantiq/storesync/internal/jobs"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/stores"
)

// MemoryFactory creates in-process storage components.
// All components created by this factory hold state in process memory,
// which suits a single instance and tests.
type MemoryFactory struct {
	config *config.Config

	// Optional shared lock store; set when Redis is configured.
	redis *locks.RedisStore
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a new in-process storage factory.
// When Redis is configured, the lock store connection is established here
// so a bad Redis address fails at startup rather than on first acquisition.
func NewMemoryFactory(ctx context.Context, cfg *config.Config) (*MemoryFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	slog.Info("Creating memory-backed storage factory")

	factory := &MemoryFactory{config: cfg}

	if cfg.Storage.Redis != nil {
		redis, err := newRedisLockStore(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, err
		}
		factory.redis = redis
	}

	return factory, nil
}

// CreateJobStore creates an in-memory store for sync job scheduling state.
func (*MemoryFactory) CreateJobStore(_ context.Context) (jobs.Store, error) {
	slog.Debug("Creating in-memory job store")
	return jobs.NewMemoryStore(), nil
}

// CreateDirectory creates an in-memory directory of registered stores.
func (*MemoryFactory) CreateDirectory(_ context.Context) (stores.Directory, error) {
	slog.Debug("Creating in-memory store directory")
	return stores.NewMemoryDirectory(), nil
}

// CreateLockStore creates the lock store backing the lock manager.
// Redis takes precedence when configured; otherwise locks live in memory.
func (f *MemoryFactory) CreateLockStore(_ context.Context) (locks.Store, error) {
	if f.redis != nil {
		slog.Debug("Using redis lock store")
		return f.redis, nil
	}

	slog.Debug("Creating in-memory lock store")
	return locks.NewMemoryStore(), nil
}

// Cleanup releases resources held by the memory factory.
// Only the optional Redis connection needs closing.
func (f *MemoryFactory) Cleanup() {
	if f.redis != nil {
		slog.Info("Closing redis lock store")
		if err := f.redis.Close(); err != nil {
			slog.Warn("Failed to close redis lock store", "error", err)
		}
	}
}
