// Package locks provides distributed operation locking for store resources.
//
// A lock guards a resource key (today: a store ID) against concurrent sync
// operations. At most one unexpired lock exists per resource key regardless
// of operation class; the class travels in the lock payload so that
// conflicting callers can report who holds the resource and why.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// OperationClass identifies the kind of work a lock protects.
type OperationClass string

// Operation classes understood by the lock manager.
const (
	ClassManualSync     OperationClass = "manual_sync"
	ClassBackgroundSync OperationClass = "background_sync"
	ClassReconnection   OperationClass = "reconnection"
)

// Valid reports whether the operation class is one of the known classes.
func (c OperationClass) Valid() bool {
	switch c {
	case ClassManualSync, ClassBackgroundSync, ClassReconnection:
		return true
	default:
		return false
	}
}

// ErrInvalidOperationClass is returned when a lock is requested with an
// operation class the manager does not recognize.
var ErrInvalidOperationClass = errors.New("invalid operation class")

// Lock is a held (or observed) lock on a resource.
type Lock struct {
	// ResourceKey is the resource being locked, typically a store ID.
	ResourceKey string `json:"resource_key"`
	// HolderID uniquely identifies the acquiring worker.
	HolderID string `json:"holder_id"`
	// OperationClass is the kind of work the holder is performing.
	OperationClass OperationClass `json:"operation_class"`
	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time `json:"acquired_at"`
	// ExpiresAt is when the lock becomes reclaimable by other acquirers.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the lock has passed its expiry at the given time.
func (l *Lock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// ConflictError is returned by Acquire when the resource is already held
// by an unexpired lock.
type ConflictError struct {
	// Key is the contested resource key.
	Key string
	// HolderID is the current holder, when known.
	HolderID string
	// OperationClass is the class of the operation holding the lock.
	OperationClass OperationClass
	// ExpiresAt is when the conflicting lock expires.
	ExpiresAt time.Time
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.HolderID == "" {
		return fmt.Sprintf("lock busy: %s is locked", e.Key)
	}
	return fmt.Sprintf("lock busy: %s held by %s (%s) until %s",
		e.Key, e.HolderID, e.OperationClass, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// IsConflict reports whether err is a lock conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Store is the persistence contract for locks. Implementations must make
// TryAcquire atomic: checking for an unexpired holder and writing the new
// lock happen as a single operation, and expired locks are reclaimed in
// the same step rather than by a separate cleanup pass.
type Store interface {
	// TryAcquire attempts to take the lock. On success it returns the new
	// lock and true. If an unexpired lock is already held it returns the
	// current holder and false.
	TryAcquire(ctx context.Context, key string, class OperationClass, holderID string, ttl time.Duration) (*Lock, bool, error)

	// Release removes the lock only when holderID matches the current
	// holder. Releasing an absent or foreign lock is a no-op.
	Release(ctx context.Context, key string, holderID string) error

	// Get returns the current unexpired lock for key, or nil when the
	// resource is free.
	Get(ctx context.Context, key string) (*Lock, error)

	// List returns all unexpired locks.
	List(ctx context.Context) ([]Lock, error)

	// Clear removes the lock for key regardless of holder.
	Clear(ctx context.Context, key string) error
}
