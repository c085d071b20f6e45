package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/merchantiq/storesync/internal/jobs"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/resilience"
	"github.com/merchantiq/storesync/internal/stores"
	pkgsync "github.com/merchantiq/storesync/internal/sync"
	"github.com/merchantiq/storesync/internal/telemetry"
)

// Defaults applied when options do not override them.
const (
	// DefaultTickInterval is the base pause between scheduling passes.
	DefaultTickInterval = time.Minute
	// DefaultBatchSize is how many due jobs one pass dispatches at once.
	DefaultBatchSize = 3
	// DefaultBatchDelay separates consecutive dispatch batches.
	DefaultBatchDelay = 2 * time.Second
	// DefaultMaxRetries is how many consecutive failures pause a job.
	DefaultMaxRetries = 3
	// DefaultRetryBackoffBase seeds the exponential failure backoff.
	DefaultRetryBackoffBase = time.Minute
	// DefaultRemovalWait bounds how long store removal waits for an
	// in-flight sync to release its lock.
	DefaultRemovalWait = 5 * time.Second
)

// Default re-arm intervals per job priority.
const (
	DefaultHighInterval   = time.Hour
	DefaultMediumInterval = 6 * time.Hour
	DefaultLowInterval    = 24 * time.Hour
)

// Scheduler coordinates background sync scheduling and the manual
// trigger surface
//
//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/merchantiq/storesync/internal/scheduler Scheduler
type Scheduler interface {
	// Start runs the tick loop until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop cancels the tick loop and drains dispatched work.
	Stop() error

	// RegisterStore upserts the store record and seeds its sync job.
	RegisterStore(ctx context.Context, store *stores.Store) (*jobs.SyncJob, error)

	// RemoveStore tears down the store's job, locks, index namespaces,
	// and deactivates the record. Safe when the store is absent.
	RemoveStore(ctx context.Context, storeID string) error

	// TriggerSync runs one sync immediately. A store already locked
	// returns *locks.ConflictError without touching the job.
	TriggerSync(ctx context.Context, storeID string) (*pkgsync.Result, error)

	// CompleteReconnection stores a fresh credential and re-arms the
	// job under a reconnection lock.
	CompleteReconnection(ctx context.Context, storeID string, accessToken string) (*jobs.SyncJob, error)

	// Status returns every job snapshot.
	Status(ctx context.Context) ([]jobs.SyncJob, error)

	// StatusFor returns one store's job snapshot.
	StatusFor(ctx context.Context, storeID string) (*jobs.SyncJob, error)
}

// defaultScheduler is the default implementation of Scheduler.
type defaultScheduler struct {
	jobs      jobs.Store
	directory stores.Directory
	locks     *locks.Manager
	executor  pkgsync.Manager

	tickInterval time.Duration
	batchSize    int
	batchDelay   time.Duration
	maxRetries   int
	retryBase    time.Duration
	intervals    map[jobs.Priority]time.Duration
	removalWait  time.Duration

	metrics *telemetry.SyncMetrics
	now     func() time.Time

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
	dispatched stdsync.WaitGroup

	mu       stdsync.Mutex
	inFlight map[string]struct{}
}

// Option is a function that configures the scheduler.
type Option func(*defaultScheduler)

// WithTickInterval sets the base pause between scheduling passes.
func WithTickInterval(interval time.Duration) Option {
	return func(s *defaultScheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// WithBatchSize sets how many due jobs one pass dispatches at once.
func WithBatchSize(size int) Option {
	return func(s *defaultScheduler) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithBatchDelay sets the pause between dispatch batches.
func WithBatchDelay(delay time.Duration) Option {
	return func(s *defaultScheduler) {
		if delay >= 0 {
			s.batchDelay = delay
		}
	}
}

// WithMaxRetries sets how many consecutive failures pause a job.
func WithMaxRetries(max int) Option {
	return func(s *defaultScheduler) {
		if max > 0 {
			s.maxRetries = max
		}
	}
}

// WithRetryBackoffBase seeds the exponential failure backoff.
func WithRetryBackoffBase(base time.Duration) Option {
	return func(s *defaultScheduler) {
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithSyncIntervals sets the re-arm interval per priority.
func WithSyncIntervals(high, medium, low time.Duration) Option {
	return func(s *defaultScheduler) {
		if high > 0 {
			s.intervals[jobs.PriorityHigh] = high
		}
		if medium > 0 {
			s.intervals[jobs.PriorityMedium] = medium
		}
		if low > 0 {
			s.intervals[jobs.PriorityLow] = low
		}
	}
}

// WithRemovalWait bounds how long RemoveStore waits for a running sync.
func WithRemovalWait(wait time.Duration) Option {
	return func(s *defaultScheduler) {
		if wait >= 0 {
			s.removalWait = wait
		}
	}
}

// WithSyncMetrics sets the sync metrics for the scheduler.
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(s *defaultScheduler) {
		s.metrics = metrics
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *defaultScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler with injected dependencies.
func New(jobStore jobs.Store, directory stores.Directory, lockManager *locks.Manager, executor pkgsync.Manager, opts ...Option) Scheduler {
	s := &defaultScheduler{
		jobs:         jobStore,
		directory:    directory,
		locks:        lockManager,
		executor:     executor,
		tickInterval: DefaultTickInterval,
		batchSize:    DefaultBatchSize,
		batchDelay:   DefaultBatchDelay,
		maxRetries:   DefaultMaxRetries,
		retryBase:    DefaultRetryBackoffBase,
		intervals: map[jobs.Priority]time.Duration{
			jobs.PriorityHigh:   DefaultHighInterval,
			jobs.PriorityMedium: DefaultMediumInterval,
			jobs.PriorityLow:    DefaultLowInterval,
		},
		removalWait: DefaultRemovalWait,
		now:         time.Now,
		done:        make(chan struct{}),
		inFlight:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs the tick loop until ctx is cancelled.
func (s *defaultScheduler) Start(ctx context.Context) error {
	slog.Info("starting sync scheduler",
		"tick_interval", s.tickInterval,
		"batch_size", s.batchSize)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	defer func() {
		close(s.done)
		slog.Info("sync scheduler shutting down")
	}()

	s.recoverInterrupted(loopCtx)

	// Jitter spreads scheduling passes across instances so they do not
	// poll the job store simultaneously.
	ticker := time.NewTicker(s.jitteredInterval())
	defer ticker.Stop()

	s.tick(loopCtx)

	for {
		select {
		case <-ticker.C:
			s.tick(loopCtx)
			ticker.Reset(s.jitteredInterval())
		case <-loopCtx.Done():
			slog.Info("sync scheduler stopping")
			return nil
		}
	}
}

// Stop cancels the tick loop and waits for dispatched jobs to finish.
func (s *defaultScheduler) Stop() error {
	if s.cancelFunc != nil {
		slog.Info("stopping sync scheduler")
		s.cancelFunc()
		<-s.done
	}
	s.dispatched.Wait()
	return nil
}

// recoverInterrupted re-arms jobs a previous process left running. A
// job is recovered only when no live lock exists for its store, so runs
// owned by another instance are left alone.
func (s *defaultScheduler) recoverInterrupted(ctx context.Context) {
	all, err := s.jobs.List(ctx)
	if err != nil {
		slog.Error("failed to scan for interrupted jobs", "error", err)
		return
	}
	for i := range all {
		job := &all[i]
		if job.Status != jobs.StatusRunning {
			continue
		}
		held, err := s.locks.Get(ctx, job.StoreID)
		if err != nil {
			slog.Error("failed to check store lock", "store_id", job.StoreID, "error", err)
			continue
		}
		if held != nil {
			continue
		}
		job.Status = jobs.StatusPending
		job.NextRunAt = s.now()
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.Error("failed to recover interrupted job", "store_id", job.StoreID, "error", err)
			continue
		}
		slog.Warn("recovered interrupted sync job", "store_id", job.StoreID)
	}
}

// jitteredInterval returns the tick interval with a ±10% random offset.
func (s *defaultScheduler) jitteredInterval() time.Duration {
	jitter := s.tickInterval / 10
	if jitter <= 0 {
		return s.tickInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for tick jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return s.tickInterval + offset
}

// tick selects due jobs and dispatches them in batches. Locked stores
// and stores already in flight are skipped; they are picked up again on
// a later pass.
func (s *defaultScheduler) tick(ctx context.Context) {
	due, err := s.jobs.Due(ctx, s.now())
	if err != nil {
		slog.Error("failed to select due sync jobs", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	batch := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return
		}

		if !s.tryMarkInFlight(job.StoreID) {
			continue
		}

		held, err := s.locks.Get(ctx, job.StoreID)
		if err != nil {
			slog.Error("failed to check store lock", "store_id", job.StoreID, "error", err)
			s.clearInFlight(job.StoreID)
			continue
		}
		if held != nil {
			slog.Debug("store locked, skipping scheduled sync",
				"store_id", job.StoreID,
				"held_by", string(held.OperationClass))
			s.clearInFlight(job.StoreID)
			continue
		}

		if batch == s.batchSize {
			batch = 0
			select {
			case <-time.After(s.batchDelay):
			case <-ctx.Done():
				s.clearInFlight(job.StoreID)
				return
			}
		}

		s.dispatch(ctx, job.StoreID)
		batch++
	}
}

// dispatch runs one scheduled sync in its own goroutine. A panicking
// job is isolated from the tick loop and from other jobs.
func (s *defaultScheduler) dispatch(ctx context.Context, storeID string) {
	s.dispatched.Add(1)
	go func() {
		defer s.dispatched.Done()
		defer s.clearInFlight(storeID)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("sync job panicked", "store_id", storeID, "panic", r)
			}
		}()

		if _, err := s.runJob(ctx, storeID, locks.ClassBackgroundSync); err != nil {
			if locks.IsConflict(err) {
				slog.Debug("store locked during dispatch", "store_id", storeID)
				return
			}
			slog.Error("scheduled sync failed to run", "store_id", storeID, "error", err)
		}
	}()
}

func (s *defaultScheduler) tryMarkInFlight(storeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[storeID]; ok {
		return false
	}
	s.inFlight[storeID] = struct{}{}
	return true
}

func (s *defaultScheduler) clearInFlight(storeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, storeID)
}

// RegisterStore upserts the store record and seeds its sync job with a
// staleness-derived priority. Re-registering refreshes the priority but
// never clobbers a running job.
func (s *defaultScheduler) RegisterStore(ctx context.Context, store *stores.Store) (*jobs.SyncJob, error) {
	if store == nil || store.ID == "" {
		return nil, fmt.Errorf("store id is required")
	}

	if err := s.directory.Upsert(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to register store: %w", err)
	}

	// Bookkeeping fields survive re-registration; read them back to
	// derive the priority from real staleness.
	registered, err := s.directory.Get(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load registered store: %w", err)
	}

	now := s.now()
	priority := jobs.PriorityFor(registered.LastSyncedAt, now)

	existing, err := s.jobs.Get(ctx, store.ID)
	if err != nil && !errors.Is(err, jobs.ErrNotFound) {
		return nil, fmt.Errorf("failed to load sync job: %w", err)
	}
	if err == nil && existing.Status == jobs.StatusRunning {
		existing.Priority = priority
		if err := s.jobs.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to refresh running job: %w", err)
		}
		return existing, nil
	}

	job := &jobs.SyncJob{
		StoreID:   store.ID,
		Priority:  priority,
		Status:    jobs.StatusPending,
		NextRunAt: now,
	}
	if err := s.jobs.Upsert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to seed sync job: %w", err)
	}

	slog.Info("store registered",
		"store_id", store.ID,
		"platform", store.Platform,
		"priority", string(priority))
	return job, nil
}

// RemoveStore tears down scheduling state for a store. The job goes
// first so no new run starts, then the teardown waits briefly for an
// in-flight run before clearing its lock.
func (s *defaultScheduler) RemoveStore(ctx context.Context, storeID string) error {
	if err := s.jobs.Delete(ctx, storeID); err != nil {
		return fmt.Errorf("failed to delete sync job: %w", err)
	}

	released, err := s.locks.WaitForUnlock(ctx, storeID, s.removalWait)
	if err != nil {
		return fmt.Errorf("failed waiting for store lock: %w", err)
	}
	if !released {
		slog.Warn("store still locked at removal, clearing lock", "store_id", storeID)
	}
	if err := s.locks.Clear(ctx, storeID); err != nil {
		return fmt.Errorf("failed to clear store locks: %w", err)
	}

	// Index namespaces are cleaned up best effort; a partial delete is
	// retried by the next removal attempt.
	if err := s.executor.CleanupStore(ctx, storeID); err != nil {
		slog.Warn("failed to remove index namespaces", "store_id", storeID, "error", err)
	}

	if err := s.directory.Deactivate(ctx, storeID); err != nil {
		return fmt.Errorf("failed to deactivate store: %w", err)
	}

	slog.Info("store removed", "store_id", storeID)
	return nil
}

// TriggerSync runs one sync inline. When the store is locked the caller
// gets the structured conflict immediately; the job's retry bookkeeping
// is left alone.
func (s *defaultScheduler) TriggerSync(ctx context.Context, storeID string) (*pkgsync.Result, error) {
	return s.runJob(ctx, storeID, locks.ClassManualSync)
}

// CompleteReconnection stores the fresh credential under a
// reconnection lock and re-arms the job for an immediate run.
func (s *defaultScheduler) CompleteReconnection(ctx context.Context, storeID string, accessToken string) (*jobs.SyncJob, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if _, err := s.directory.Get(ctx, storeID); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	if _, err := s.locks.Acquire(ctx, storeID, locks.ClassReconnection, holder); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, storeID, holder)

	if err := s.directory.UpdateCredential(ctx, storeID, accessToken); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	refreshed, err := s.directory.Get(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	now := s.now()
	job := &jobs.SyncJob{
		StoreID:   storeID,
		Priority:  jobs.PriorityFor(refreshed.LastSyncedAt, now),
		Status:    jobs.StatusPending,
		NextRunAt: now,
	}
	if err := s.jobs.Upsert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to re-arm sync job: %w", err)
	}

	slog.Info("store reconnected", "store_id", storeID, "priority", string(job.Priority))
	return job, nil
}

// Status returns every job snapshot.
func (s *defaultScheduler) Status(ctx context.Context) ([]jobs.SyncJob, error) {
	return s.jobs.List(ctx)
}

// StatusFor returns one store's job snapshot.
func (s *defaultScheduler) StatusFor(ctx context.Context, storeID string) (*jobs.SyncJob, error) {
	return s.jobs.Get(ctx, storeID)
}

// runJob executes one sync run under the store's lock: mark the job
// running, invoke the executor, then apply the completion or failure
// transition. The lock is always released, panics included.
func (s *defaultScheduler) runJob(ctx context.Context, storeID string, class locks.OperationClass) (*pkgsync.Result, error) {
	job, err := s.jobs.Get(ctx, storeID)
	if err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	if _, err := s.locks.Acquire(ctx, storeID, class, holder); err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, storeID, holder)

	// The snapshot that selected this job may be stale: a manual run
	// can have finished or re-armed it between selection and lock
	// acquisition. Scheduled runs re-check under the lock.
	if class == locks.ClassBackgroundSync {
		job, err = s.jobs.Get(ctx, storeID)
		if err != nil {
			return nil, err
		}
		if !job.Runnable() || job.NextRunAt.After(s.now()) {
			slog.Debug("job no longer due, skipping",
				"store_id", storeID,
				"status", string(job.Status))
			return nil, nil
		}
	}

	store, err := s.directory.Get(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	job.Status = jobs.StatusRunning
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	slog.Info("starting sync run",
		"store_id", storeID,
		"trigger", triggerLabel(class),
		"retry_count", job.RetryCount)

	result := s.executor.SyncStore(ctx, store)

	// State transitions still apply when the run outlived its context.
	finalizeCtx := context.WithoutCancel(ctx)
	s.metrics.RecordSyncRun(finalizeCtx, storeID, triggerLabel(class),
		result.CompletedAt.Sub(result.StartedAt), result.Success)

	if result.Success {
		s.completeJob(finalizeCtx, job)
	} else {
		s.failJob(finalizeCtx, job, result.Err)
	}
	return result, nil
}

func (s *defaultScheduler) releaseLock(ctx context.Context, storeID, holder string) {
	if err := s.locks.Release(context.WithoutCancel(ctx), storeID, holder); err != nil {
		slog.Warn("failed to release sync lock", "store_id", storeID, "error", err)
	}
}

// completeJob re-derives the job's priority from the store's post-run
// staleness and re-arms it at that priority's interval.
func (s *defaultScheduler) completeJob(ctx context.Context, job *jobs.SyncJob) {
	now := s.now()
	job.Status = jobs.StatusCompleted
	job.RetryCount = 0
	job.LastError = ""
	job.LastRunAt = &now
	// The run's bookkeeping moved LastSyncedAt, so a fresh sync normally
	// lands on the slow cadence until the store goes stale again.
	if store, err := s.directory.Get(ctx, job.StoreID); err == nil {
		job.Priority = jobs.PriorityFor(store.LastSyncedAt, now)
	} else {
		slog.Warn("failed to refresh job priority", "store_id", job.StoreID, "error", err)
	}
	job.NextRunAt = now.Add(s.intervalFor(job.Priority))

	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("failed to record sync completion", "store_id", job.StoreID, "error", err)
		return
	}
	slog.Info("sync run completed",
		"store_id", job.StoreID,
		"next_run_at", job.NextRunAt)
}

// failJob applies the failure state machine: validation failures pause
// the job for operator intervention, transient failures back off
// exponentially, and exhausting the retry budget pauses the job and
// flags the store for reconnection.
func (s *defaultScheduler) failJob(ctx context.Context, job *jobs.SyncJob, runErr error) {
	now := s.now()

	// A run aborted by shutdown says nothing about the store; put the
	// job back without consuming a retry.
	if errors.Is(runErr, context.Canceled) {
		job.Status = jobs.StatusPending
		job.NextRunAt = now
		if err := s.jobs.Update(ctx, job); err != nil {
			slog.Error("failed to re-arm interrupted job", "store_id", job.StoreID, "error", err)
		}
		return
	}

	job.RetryCount++
	job.LastRunAt = &now
	if runErr != nil {
		job.LastError = runErr.Error()
	} else {
		job.LastError = "sync failed"
	}

	kind := resilience.Classify(runErr)
	switch {
	case kind == resilience.KindValidation:
		job.Status = jobs.StatusPaused
		slog.Error("sync job paused on validation failure",
			"store_id", job.StoreID,
			"error", runErr)

	case job.RetryCount >= s.maxRetries:
		job.Status = jobs.StatusPaused
		// The reconnection flag is set on the pause transition only;
		// the directory keeps it idempotent.
		if err := s.directory.MarkNeedsReconnection(ctx, job.StoreID); err != nil {
			slog.Error("failed to flag store for reconnection", "store_id", job.StoreID, "error", err)
		}
		s.metrics.RecordJobPaused(ctx, job.StoreID)
		slog.Error("sync job paused after exhausting retries",
			"store_id", job.StoreID,
			"retry_count", job.RetryCount,
			"error", runErr)

	default:
		job.Status = jobs.StatusFailed
		job.NextRunAt = now.Add(s.backoffFor(job.RetryCount))
		slog.Warn("sync run failed, backing off",
			"store_id", job.StoreID,
			"retry_count", job.RetryCount,
			"next_run_at", job.NextRunAt,
			"kind", string(kind),
			"error", runErr)
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		slog.Error("failed to record sync failure", "store_id", job.StoreID, "error", err)
	}
}

func (s *defaultScheduler) intervalFor(priority jobs.Priority) time.Duration {
	if interval, ok := s.intervals[priority]; ok {
		return interval
	}
	return DefaultLowInterval
}

// backoffFor grows the retry delay by powers of three: with the default
// base the sequence is 3m, 9m, 27m.
func (s *defaultScheduler) backoffFor(retryCount int) time.Duration {
	delay := s.retryBase
	for i := 0; i < retryCount; i++ {
		delay *= 3
	}
	return delay
}

func triggerLabel(class locks.OperationClass) string {
	if class == locks.ClassManualSync {
		return "manual"
	}
	return "scheduled"
}
