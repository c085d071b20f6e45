package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory job store for the
// single-process deployment mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	byKey map[string]SyncJob
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects the time source used for UpdatedAt stamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory job store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:   time.Now,
		byKey: make(map[string]SyncJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *job
	stored.UpdatedAt = s.now()
	s.byKey[job.StoreID] = stored
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, storeID string) (*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.byKey[storeID]
	if !ok {
		return nil, ErrNotFound
	}
	out := job
	return &out, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, job *SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[job.StoreID]; !ok {
		return ErrNotFound
	}
	stored := *job
	stored.UpdatedAt = s.now()
	s.byKey[job.StoreID] = stored
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byKey, storeID)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SyncJob, 0, len(s.byKey))
	for _, job := range s.byKey {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

// Due implements Store.
func (s *MemoryStore) Due(_ context.Context, now time.Time) ([]SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []SyncJob
	for _, job := range s.byKey {
		if job.Runnable() && !job.NextRunAt.After(now) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.rank() != out[j].Priority.rank() {
			return out[i].Priority.rank() < out[j].Priority.rank()
		}
		if !out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].NextRunAt.Before(out[j].NextRunAt)
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out, nil
}
