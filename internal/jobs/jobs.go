// Package jobs defines the per-store sync job model and its persistence
// contract. Exactly one job exists per registered store; the scheduler owns
// every status transition and stores only persist what it decides.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Status is the rest state of a sync job between scheduler transitions.
type Status string

const (
	// StatusPending means the job is waiting for its NextRunAt to arrive.
	StatusPending Status = "pending"

	// StatusRunning means a worker holds the store lock and is syncing now.
	StatusRunning Status = "running"

	// StatusCompleted means the last run succeeded; the job becomes due
	// again once NextRunAt arrives.
	StatusCompleted Status = "completed"

	// StatusFailed means the last run failed and a backoff retry is
	// scheduled at NextRunAt.
	StatusFailed Status = "failed"

	// StatusPaused means the job is out of the rotation until an operator
	// or a credential reconnection intervenes.
	StatusPaused Status = "paused"
)

// Priority orders due jobs within a tick; staler stores go first.
type Priority string

const (
	// PriorityHigh is for stores never synced or stale beyond a day.
	PriorityHigh Priority = "high"

	// PriorityMedium is for stores stale beyond half a day.
	PriorityMedium Priority = "medium"

	// PriorityLow is for recently synced stores.
	PriorityLow Priority = "low"
)

// Staleness thresholds behind PriorityFor.
const (
	highStaleness   = 24 * time.Hour
	mediumStaleness = 12 * time.Hour
)

// PriorityFor derives a job's priority from how stale the store's data is.
// A store that never synced is treated as maximally stale.
func PriorityFor(lastSyncedAt *time.Time, now time.Time) Priority {
	if lastSyncedAt == nil {
		return PriorityHigh
	}
	staleness := now.Sub(*lastSyncedAt)
	switch {
	case staleness > highStaleness:
		return PriorityHigh
	case staleness > mediumStaleness:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// rank maps priorities to sort order, high first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// SyncJob is the scheduling record for one store.
type SyncJob struct {
	// StoreID identifies the store this job syncs; one job per store.
	StoreID string `json:"store_id"`

	// Priority orders this job against other due jobs.
	Priority Priority `json:"priority"`

	// RetryCount is the number of consecutive failures since the last
	// success.
	RetryCount int `json:"retry_count"`

	// NextRunAt is the earliest time the job is eligible to run.
	NextRunAt time.Time `json:"next_run_at"`

	// LastRunAt is when the last run finished; nil until the first run.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// Status is the job's current rest state.
	Status Status `json:"status"`

	// LastError describes the most recent failure; empty after a success.
	LastError string `json:"last_error,omitempty"`

	// UpdatedAt is stamped by the store on every write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Runnable reports whether the job's status allows the tick loop to pick
// it up once NextRunAt arrives. Completed and failed jobs are pending
// their next run; paused and running jobs are not.
func (j *SyncJob) Runnable() bool {
	switch j.Status {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ErrNotFound is returned when no job exists for the requested store.
var ErrNotFound = errors.New("sync job not found")

// Store is the persistence contract for sync jobs. Implementations stamp
// UpdatedAt on every write.
type Store interface {
	// Upsert creates the job or replaces it wholesale.
	Upsert(ctx context.Context, job *SyncJob) error

	// Get returns the job for storeID or ErrNotFound.
	Get(ctx context.Context, storeID string) (*SyncJob, error)

	// Update overwrites an existing job or returns ErrNotFound.
	Update(ctx context.Context, job *SyncJob) error

	// Delete removes the job; deleting an absent job is a no-op.
	Delete(ctx context.Context, storeID string) error

	// List returns all jobs ordered by store ID.
	List(ctx context.Context) ([]SyncJob, error)

	// Due returns runnable jobs with NextRunAt at or before now, ordered
	// by priority (high first) then NextRunAt.
	Due(ctx context.Context, now time.Time) ([]SyncJob, error)
}
