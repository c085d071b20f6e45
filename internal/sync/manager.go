package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/merchantiq/storesync/internal/commerce"
	"github.com/merchantiq/storesync/internal/index"
	"github.com/merchantiq/storesync/internal/resilience"
	"github.com/merchantiq/storesync/internal/stores"
)

// Stage identifies one step of the sync pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageVerify      Stage = "verify"
	StageFetch       Stage = "fetch"
	StageTransform   Stage = "transform"
	StageIndex       Stage = "index"
	StageBookkeeping Stage = "bookkeeping"
)

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	// StageOK means the stage completed for every entity type it saw.
	StageOK StageStatus = "ok"
	// StagePartial means the stage completed for some entity types and
	// failed for others.
	StagePartial StageStatus = "partial"
	// StageFailed means the stage failed outright.
	StageFailed StageStatus = "failed"
	// StageSkipped means an earlier failure made the stage unreachable.
	StageSkipped StageStatus = "skipped"
)

// StageOutcome records how one stage ended.
type StageOutcome struct {
	Stage  Stage
	Status StageStatus
	Err    error
}

// EntityOutcome tracks one entity type through the pipeline.
type EntityOutcome struct {
	Entity commerce.EntityType

	// Fetched is the number of records returned by the platform.
	Fetched int
	// Skipped is the number of malformed records dropped in transform.
	Skipped int
	// Indexed is the number of documents written to the index.
	Indexed int

	// Err is the failure that stopped this entity type, nil on success.
	Err error
}

// Result is the outcome of one sync run.
type Result struct {
	StoreID     string
	StartedAt   time.Time
	CompletedAt time.Time

	// Success means at least one entity type was fully fetched and
	// indexed. Partial failures are visible through Entities.
	Success bool

	// Stages holds per-stage outcomes in execution order.
	Stages []StageOutcome

	// Entities holds per-entity-type counts and failures.
	Entities []EntityOutcome

	// Err is the terminal failure when Success is false.
	Err error
}

// FailedEntities returns the entity types that did not complete.
func (r *Result) FailedEntities() []EntityOutcome {
	var failed []EntityOutcome
	for _, e := range r.Entities {
		if e.Err != nil {
			failed = append(failed, e)
		}
	}
	return failed
}

// IndexedTotal returns the number of documents written across all
// entity types.
func (r *Result) IndexedTotal() int {
	total := 0
	for _, e := range r.Entities {
		total += e.Indexed
	}
	return total
}

func (r *Result) addStage(stage Stage, status StageStatus, err error) {
	r.Stages = append(r.Stages, StageOutcome{Stage: stage, Status: status, Err: err})
}

// CredentialProvider verifies a store and returns its platform
// credential.
type CredentialProvider interface {
	ValidCredential(ctx context.Context, storeID string) (string, error)
}

// Manager executes synchronization runs for stores
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/merchantiq/storesync/internal/sync Manager
type Manager interface {
	// SyncStore runs the five-stage pipeline for one store.
	SyncStore(ctx context.Context, store *stores.Store) *Result

	// CleanupStore removes the store's index namespaces.
	CleanupStore(ctx context.Context, storeID string) error
}

// Defaults applied when options do not override them.
const (
	// DefaultFetchTimeout bounds one entity type's fetch, including
	// retries.
	DefaultFetchTimeout = 2 * time.Minute

	// DefaultIndexBatchSize is the number of documents per upsert call.
	DefaultIndexBatchSize = 500
)

// DefaultSyncManager is the default implementation of Manager.
type DefaultSyncManager struct {
	directory   stores.Directory
	credentials CredentialProvider
	source      commerce.Source
	sink        index.Sink

	sourceGuard *resilience.Guard
	indexGuard  *resilience.Guard

	fetchTimeout time.Duration
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a DefaultSyncManager.
type Option func(*DefaultSyncManager)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *DefaultSyncManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFetchTimeout bounds each entity type's fetch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(m *DefaultSyncManager) {
		if timeout > 0 {
			m.fetchTimeout = timeout
		}
	}
}

// WithIndexBatchSize sets the number of documents per upsert.
func WithIndexBatchSize(size int) Option {
	return func(m *DefaultSyncManager) {
		if size > 0 {
			m.batchSize = size
		}
	}
}

// WithSourceGuard replaces the commerce platform guard.
func WithSourceGuard(guard *resilience.Guard) Option {
	return func(m *DefaultSyncManager) {
		if guard != nil {
			m.sourceGuard = guard
		}
	}
}

// WithIndexGuard replaces the index service guard.
func WithIndexGuard(guard *resilience.Guard) Option {
	return func(m *DefaultSyncManager) {
		if guard != nil {
			m.indexGuard = guard
		}
	}
}

// WithCredentialProvider replaces the credential verification step.
func WithCredentialProvider(provider CredentialProvider) Option {
	return func(m *DefaultSyncManager) {
		if provider != nil {
			m.credentials = provider
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *DefaultSyncManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewDefaultSyncManager creates a sync manager over the given store
// directory, platform source, and index sink.
func NewDefaultSyncManager(directory stores.Directory, source commerce.Source, sink index.Sink, opts ...Option) Manager {
	m := &DefaultSyncManager{
		directory:    directory,
		source:       source,
		sink:         sink,
		fetchTimeout: DefaultFetchTimeout,
		batchSize:    DefaultIndexBatchSize,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.credentials == nil {
		m.credentials = stores.NewCredentials(directory)
	}
	if m.sourceGuard == nil {
		m.sourceGuard = resilience.NewGuard(
			resilience.NewBreaker("commerce", resilience.DefaultBreakerConfig()),
			resilience.DefaultRetryPolicy(), m.logger)
	}
	if m.indexGuard == nil {
		m.indexGuard = resilience.NewGuard(
			resilience.NewBreaker("index", resilience.DefaultBreakerConfig()),
			resilience.DefaultRetryPolicy(), m.logger)
	}
	return m
}

// SyncStore runs the five-stage pipeline for one store.
func (m *DefaultSyncManager) SyncStore(ctx context.Context, store *stores.Store) *Result {
	result := &Result{StoreID: store.ID, StartedAt: m.now()}
	defer func() {
		result.CompletedAt = m.now()
	}()

	logger := m.logger.With("store_id", store.ID)

	// Verify
	credential, err := m.credentials.ValidCredential(ctx, store.ID)
	if err != nil {
		logger.ErrorContext(ctx, "store verification failed", "error", err)
		result.addStage(StageVerify, StageFailed, err)
		result.addStage(StageFetch, StageSkipped, nil)
		result.addStage(StageTransform, StageSkipped, nil)
		result.addStage(StageIndex, StageSkipped, nil)
		result.addStage(StageBookkeeping, StageSkipped, nil)
		result.Err = fmt.Errorf("verification failed for store %s: %w", store.ID, err)
		return result
	}
	result.addStage(StageVerify, StageOK, nil)

	// Fetch
	fetched := m.fetchAll(ctx, logger, credential, store)
	fetchFailures := 0
	for i := range fetched {
		result.Entities = append(result.Entities, fetched[i].outcome)
		if fetched[i].outcome.Err != nil {
			fetchFailures++
		}
	}
	switch {
	case fetchFailures == 0:
		result.addStage(StageFetch, StageOK, nil)
	case fetchFailures < len(fetched):
		result.addStage(StageFetch, StagePartial, nil)
	default:
		result.addStage(StageFetch, StageFailed, nil)
	}

	if fetchFailures == len(fetched) {
		result.addStage(StageTransform, StageSkipped, nil)
		result.addStage(StageIndex, StageSkipped, nil)
		result.addStage(StageBookkeeping, StageSkipped, nil)
		result.Err = m.terminalError(store.ID, result.Entities)
		logger.ErrorContext(ctx, "sync failed, no entity type fetched", "error", result.Err)
		return result
	}

	// Transform
	docs := make([][]index.Document, len(fetched))
	for i := range fetched {
		if fetched[i].outcome.Err != nil {
			continue
		}
		transformed, skipped := transformRecords(fetched[i].records)
		docs[i] = transformed
		result.Entities[i].Skipped = skipped
		if skipped > 0 {
			logger.WarnContext(ctx, "skipped malformed records",
				"entity", string(fetched[i].outcome.Entity),
				"skipped", skipped)
		}
	}
	result.addStage(StageTransform, StageOK, nil)

	// Index
	indexed := 0
	for i := range result.Entities {
		eo := &result.Entities[i]
		if eo.Err != nil {
			continue
		}
		namespace := index.Namespace(store.ID, string(eo.Entity))
		written, err := m.indexDocuments(ctx, namespace, docs[i])
		eo.Indexed = written
		if err != nil {
			eo.Err = fmt.Errorf("indexing %s failed: %w", eo.Entity, err)
			logger.ErrorContext(ctx, "entity indexing failed",
				"entity", string(eo.Entity),
				"namespace", namespace,
				"error", err)
			continue
		}
		indexed++
	}
	switch {
	case indexed == len(result.Entities):
		result.addStage(StageIndex, StageOK, nil)
	case indexed > 0:
		result.addStage(StageIndex, StagePartial, nil)
	default:
		result.addStage(StageIndex, StageFailed, nil)
	}

	if indexed == 0 {
		result.addStage(StageBookkeeping, StageSkipped, nil)
		result.Err = m.terminalError(store.ID, result.Entities)
		logger.ErrorContext(ctx, "sync failed, no entity type indexed", "error", result.Err)
		return result
	}
	result.Success = true

	// Bookkeeping
	result.addStage(StageBookkeeping, m.bookkeeping(ctx, logger, store.ID, result), nil)

	logger.InfoContext(ctx, "sync completed",
		"indexed_documents", result.IndexedTotal(),
		"failed_entities", len(result.FailedEntities()),
		"duration", result.CompletedAt.Sub(result.StartedAt))
	return result
}

// CleanupStore removes the store's index namespaces.
func (m *DefaultSyncManager) CleanupStore(ctx context.Context, storeID string) error {
	var errs []error
	for _, entityType := range commerce.EntityTypes() {
		namespace := index.Namespace(storeID, string(entityType))
		if err := m.sink.DeleteNamespace(ctx, namespace); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete namespace %s: %w", namespace, err))
		}
	}
	return errors.Join(errs...)
}

type fetchedEntities struct {
	outcome EntityOutcome
	records []commerce.Entity
}

// fetchAll fetches every entity type in parallel. Each fetch gets its
// own timeout and runs behind the platform guard; one type's failure
// never cancels the others.
func (m *DefaultSyncManager) fetchAll(ctx context.Context, logger *slog.Logger, credential string, store *stores.Store) []fetchedEntities {
	entityTypes := commerce.EntityTypes()
	fetched := make([]fetchedEntities, len(entityTypes))

	var wg stdsync.WaitGroup
	for i, entityType := range entityTypes {
		fetched[i].outcome.Entity = entityType
		wg.Add(1)
		go func() {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
			defer cancel()

			records, err := resilience.Execute(fetchCtx, m.sourceGuard, func(ctx context.Context) ([]commerce.Entity, error) {
				return m.source.FetchEntities(ctx, credential, store.ID, entityType, store.LastSyncedAt)
			})
			if err != nil {
				fetched[i].outcome.Err = err
				logger.ErrorContext(ctx, "entity fetch failed",
					"entity", string(entityType),
					"error", err)
				return
			}
			fetched[i].records = records
			fetched[i].outcome.Fetched = len(records)
			logger.InfoContext(ctx, "entities fetched",
				"entity", string(entityType),
				"count", len(records))
		}()
	}
	wg.Wait()

	return fetched
}

// transformRecords converts platform records into index documents.
// Records without an ID cannot be upserted and are skipped.
func transformRecords(records []commerce.Entity) ([]index.Document, int) {
	docs := make([]index.Document, 0, len(records))
	skipped := 0
	for _, record := range records {
		if record.ID == "" {
			skipped++
			continue
		}
		fields := make(map[string]any, len(record.Attributes)+1)
		for k, v := range record.Attributes {
			fields[k] = v
		}
		if !record.UpdatedAt.IsZero() {
			fields["updated_at"] = record.UpdatedAt.UTC().Format(time.RFC3339)
		}
		docs = append(docs, index.Document{ID: record.ID, Fields: fields})
	}
	return docs, skipped
}

// indexDocuments upserts docs into the namespace in batches behind the
// index guard. It returns how many documents were written; a batch
// failure abandons the remaining batches for this namespace.
func (m *DefaultSyncManager) indexDocuments(ctx context.Context, namespace string, docs []index.Document) (int, error) {
	written := 0
	for start := 0; start < len(docs); start += m.batchSize {
		end := min(start+m.batchSize, len(docs))
		batch := docs[start:end]
		_, err := resilience.Execute(ctx, m.indexGuard, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.sink.Upsert(ctx, namespace, batch)
		})
		if err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, nil
}

// bookkeeping records the sync checkpoint and namespace stats. Nothing
// here can fail the run.
func (m *DefaultSyncManager) bookkeeping(ctx context.Context, logger *slog.Logger, storeID string, result *Result) StageStatus {
	status := StageOK

	// The checkpoint is the run's start so records updated mid-run are
	// picked up again next time.
	if err := m.directory.SetLastSyncedAt(ctx, storeID, result.StartedAt); err != nil {
		logger.WarnContext(ctx, "failed to record sync checkpoint", "error", err)
		status = StagePartial
	}

	for _, eo := range result.Entities {
		if eo.Err != nil {
			continue
		}
		namespace := index.Namespace(storeID, string(eo.Entity))
		stats, err := m.sink.DescribeStats(ctx, namespace)
		if err != nil {
			logger.DebugContext(ctx, "failed to read namespace stats",
				"namespace", namespace,
				"error", err)
			status = StagePartial
			continue
		}
		logger.DebugContext(ctx, "namespace stats",
			"namespace", namespace,
			"documents", stats.DocumentCount)
	}

	return status
}

// terminalError folds per-entity failures into the run's terminal
// error in entity order.
func (*DefaultSyncManager) terminalError(storeID string, entities []EntityOutcome) error {
	var errs []error
	for _, eo := range entities {
		if eo.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eo.Entity, eo.Err))
		}
	}
	return fmt.Errorf("no entity type completed for store %s: %w", storeID, errors.Join(errs...))
}
