package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchantiq/storesync/internal/app/storage/auth"
	"github.com/merchantiq/storesync/internal/config"
	"github.com/merchantiq/storesync/internal/jobs"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/stores"
)

// DatabaseFactory creates database-backed storage components.
// All components created by this factory use PostgreSQL for persistence.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool

	// Optional shared lock store; set when Redis is configured.
	redis *locks.RedisStore
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Storage.Database == nil {
		return nil, fmt.Errorf("database configuration is required for the postgres backend")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	factory := &DatabaseFactory{
		config: cfg,
		pool:   pool,
	}

	if cfg.Storage.Redis != nil {
		redis, err := newRedisLockStore(ctx, cfg.Storage.Redis)
		if err != nil {
			pool.Close()
			return nil, err
		}
		factory.redis = redis
	}

	return factory, nil
}

// CreateJobStore creates a database-backed store for sync job scheduling state.
func (d *DatabaseFactory) CreateJobStore(_ context.Context) (jobs.Store, error) {
	slog.Debug("Creating database-backed job store")
	return jobs.NewPostgresStore(d.pool), nil
}

// CreateDirectory creates a database-backed directory of registered stores.
func (d *DatabaseFactory) CreateDirectory(_ context.Context) (stores.Directory, error) {
	slog.Debug("Creating database-backed store directory")
	return stores.NewPostgresDirectory(d.pool), nil
}

// CreateLockStore creates the lock store backing the lock manager.
// Redis takes precedence when configured; otherwise locks are stored
// in PostgreSQL alongside the job state.
func (d *DatabaseFactory) CreateLockStore(_ context.Context) (locks.Store, error) {
	if d.redis != nil {
		slog.Debug("Using redis lock store")
		return d.redis, nil
	}

	slog.Debug("Creating database-backed lock store")
	return locks.NewPostgresStore(d.pool), nil
}

// Cleanup releases resources held by the database factory.
// This closes the database connection pool and any active connections.
func (d *DatabaseFactory) Cleanup() {
	if d.redis != nil {
		slog.Info("Closing redis lock store")
		if err := d.redis.Close(); err != nil {
			slog.Warn("Failed to close redis lock store", "error", err)
		}
	}

	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a database connection pool with proper configuration.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build database connection string: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	// Configure pool settings from config
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if lifetime := cfg.GetConnMaxLifetime(); lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	// Dynamic auth mints a fresh token for every new connection, since
	// RDS IAM tokens expire after fifteen minutes.
	if cfg.DynamicAuth != nil {
		authFn, err := auth.NewDynamicAuth(ctx, cfg, cfg.User)
		if err != nil {
			return nil, fmt.Errorf("failed to configure dynamic database auth: %w", err)
		}
		poolConfig.BeforeConnect = authFn
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
