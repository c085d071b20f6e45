package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/merchantiq/storesync/sync"

	// LockMetricsMeterName is the name used for the lock metrics meter
	LockMetricsMeterName = "github.com/merchantiq/storesync/locks"

	// BreakerMetricsMeterName is the name used for the circuit breaker metrics meter
	BreakerMetricsMeterName = "github.com/merchantiq/storesync/resilience"
)

// SyncMetrics holds the OpenTelemetry instruments for sync run metrics
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	syncRuns     metric.Int64Counter
	jobsPaused   metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"storesync_sync_duration_seconds",
		metric.WithDescription("Duration of store sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	syncRuns, err := meter.Int64Counter(
		"storesync_sync_runs_total",
		metric.WithDescription("Total number of store sync runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	jobsPaused, err := meter.Int64Counter(
		"storesync_jobs_paused_total",
		metric.WithDescription("Total number of jobs paused after exhausting retries"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		syncRuns:     syncRuns,
		jobsPaused:   jobsPaused,
	}, nil
}

// RecordSyncRun records the duration and outcome of one sync run
func (m *SyncMetrics) RecordSyncRun(ctx context.Context, storeID, trigger string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("store_id", storeID),
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.syncRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordJobPaused records a job transitioning to paused
func (m *SyncMetrics) RecordJobPaused(ctx context.Context, storeID string) {
	if m == nil || m.jobsPaused == nil {
		return
	}

	m.jobsPaused.Add(ctx, 1, metric.WithAttributes(attribute.String("store_id", storeID)))
}

// LockMetrics holds the OpenTelemetry instruments for lock manager metrics
type LockMetrics struct {
	acquired  metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewLockMetrics creates a new LockMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewLockMetrics(provider metric.MeterProvider) (*LockMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(LockMetricsMeterName)

	acquired, err := meter.Int64Counter(
		"storesync_locks_acquired_total",
		metric.WithDescription("Total number of successful lock acquisitions"),
		metric.WithUnit("{lock}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"storesync_lock_conflicts_total",
		metric.WithDescription("Total number of lock acquisitions rejected because the store was already locked"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &LockMetrics{
		acquired:  acquired,
		conflicts: conflicts,
	}, nil
}

// RecordAcquired records a successful lock acquisition for an operation class
func (m *LockMetrics) RecordAcquired(ctx context.Context, operationClass string) {
	if m == nil || m.acquired == nil {
		return
	}

	m.acquired.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_class", operationClass)))
}

// RecordConflict records a rejected acquisition; the attribute names the
// operation class of the lock that was already held
func (m *LockMetrics) RecordConflict(ctx context.Context, heldClass string) {
	if m == nil || m.conflicts == nil {
		return
	}

	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("held_class", heldClass)))
}

// BreakerMetrics holds the OpenTelemetry instruments for circuit breaker metrics
type BreakerMetrics struct {
	transitions metric.Int64Counter
}

// NewBreakerMetrics creates a new BreakerMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBreakerMetrics(provider metric.MeterProvider) (*BreakerMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BreakerMetricsMeterName)

	transitions, err := meter.Int64Counter(
		"storesync_breaker_transitions_total",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &BreakerMetrics{
		transitions: transitions,
	}, nil
}

// RecordTransition records one circuit breaker state change
func (m *BreakerMetrics) RecordTransition(ctx context.Context, name, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	}

	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}
