package locks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory lock store. It backs the
// single-process deployment mode and tests; expiry is evaluated lazily on
// every access against the injected clock.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]Lock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects the time source, letting tests control expiry.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory lock store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:   time.Now,
		locks: make(map[string]Lock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryAcquire implements Store. An expired lock is overwritten in the same
// critical section, so reclamation never races a competing acquirer.
func (s *MemoryStore) TryAcquire(_ context.Context, key string, class OperationClass, holderID string, ttl time.Duration) (*Lock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[key]; ok && !held.Expired(now) {
		current := held
		return &current, false, nil
	}

	lock := Lock{
		ResourceKey:    key,
		HolderID:       holderID,
		OperationClass: class,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(ttl),
	}
	s.locks[key] = lock
	return &lock, true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[key]; ok && held.HolderID == holderID {
		delete(s.locks, key)
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[key]
	if !ok {
		return nil, nil
	}
	if held.Expired(s.now()) {
		delete(s.locks, key)
		return nil, nil
	}
	current := held
	return &current, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Lock, 0, len(s.locks))
	for key, held := range s.locks {
		if held.Expired(now) {
			delete(s.locks, key)
			continue
		}
		out = append(out, held)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceKey < out[j].ResourceKey })
	return out, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, key)
	return nil
}
