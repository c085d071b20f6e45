package locks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/merchantiq/storesync/internal/telemetry"
)

// Defaults for lock lifetime and conflict polling.
const (
	// DefaultTTL bounds how long a crashed worker can hold a resource.
	DefaultTTL = 5 * time.Minute
	// DefaultPollInterval is how often WaitForUnlock re-checks the resource.
	DefaultPollInterval = 100 * time.Millisecond
)

// Manager coordinates lock acquisition over a Store. It owns the default
// TTL, conflict reporting, and the polling loop for callers that want to
// wait for a resource to free up.
type Manager struct {
	store        Store
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *telemetry.LockMetrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the default lock lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithPollInterval overrides the WaitForUnlock polling interval.
func WithPollInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// WithLogger sets the logger used for lock lifecycle events.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches lock metrics. A nil value disables recording.
func WithMetrics(metrics *telemetry.LockMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a lock manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:        store,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the lock for key on behalf of holderID. A non-positive ttl
// uses the manager default. On conflict it returns a *ConflictError
// describing the current holder.
func (m *Manager) Acquire(ctx context.Context, key string, class OperationClass, holderID string) (*Lock, error) {
	return m.AcquireWithTTL(ctx, key, class, holderID, m.ttl)
}

// AcquireWithTTL is Acquire with an explicit lock lifetime.
func (m *Manager) AcquireWithTTL(ctx context.Context, key string, class OperationClass, holderID string, ttl time.Duration) (*Lock, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperationClass, class)
	}
	if holderID == "" {
		return nil, fmt.Errorf("holder ID is required")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	lock, acquired, err := m.store.TryAcquire(ctx, key, class, holderID, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}
	if !acquired {
		conflict := &ConflictError{Key: key}
		if lock != nil {
			conflict.HolderID = lock.HolderID
			conflict.OperationClass = lock.OperationClass
			conflict.ExpiresAt = lock.ExpiresAt
		}
		m.metrics.RecordConflict(ctx, string(conflict.OperationClass))
		m.logger.Debug("lock conflict",
			"resource", key,
			"requested_class", string(class),
			"held_class", string(conflict.OperationClass),
			"holder", conflict.HolderID)
		return nil, conflict
	}

	m.metrics.RecordAcquired(ctx, string(class))
	m.logger.Debug("lock acquired",
		"resource", key,
		"class", string(class),
		"holder", holderID,
		"expires_at", lock.ExpiresAt)
	return lock, nil
}

// Release drops the lock for key when holderID still holds it. Releasing
// a lock that expired or was taken over by another holder is a no-op.
func (m *Manager) Release(ctx context.Context, key string, holderID string) error {
	if err := m.store.Release(ctx, key, holderID); err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", key, err)
	}
	m.logger.Debug("lock released", "resource", key, "holder", holderID)
	return nil
}

// Get returns the current unexpired lock for key, or nil when free.
func (m *Manager) Get(ctx context.Context, key string) (*Lock, error) {
	lock, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock for %s: %w", key, err)
	}
	return lock, nil
}

// ActiveLocks returns all unexpired locks.
func (m *Manager) ActiveLocks(ctx context.Context) ([]Lock, error) {
	held, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}
	return held, nil
}

// Clear force-releases the lock for key regardless of holder. Intended for
// resource teardown, not for stealing locks from live workers.
func (m *Manager) Clear(ctx context.Context, key string) error {
	if err := m.store.Clear(ctx, key); err != nil {
		return fmt.Errorf("failed to clear lock for %s: %w", key, err)
	}
	m.logger.Debug("lock cleared", "resource", key)
	return nil
}

// WaitForUnlock polls until the resource is observed free or the timeout
// elapses. It returns true when the resource was seen unlocked and false
// on timeout; a timeout is advisory and not an error. The resource may be
// re-locked by another worker immediately after a true return.
func (m *Manager) WaitForUnlock(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		lock, err := m.store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("failed to read lock for %s: %w", key, err)
		}
		if lock == nil {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			m.logger.Debug("wait for unlock timed out",
				"resource", key,
				"holder", lock.HolderID,
				"timeout", timeout)
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
