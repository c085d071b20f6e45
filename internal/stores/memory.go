package stores

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is a mutex-guarded in-memory Directory for the
// single-process deployment mode and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	now   func() time.Time
	byKey map[string]Store
}

// MemoryOption configures a MemoryDirectory.
type MemoryOption func(*MemoryDirectory)

// WithMemoryClock injects the time source used for timestamp stamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(d *MemoryDirectory) {
		if now != nil {
			d.now = now
		}
	}
}

// NewMemoryDirectory creates an empty in-memory store directory.
func NewMemoryDirectory(opts ...MemoryOption) *MemoryDirectory {
	d := &MemoryDirectory{
		now:   time.Now,
		byKey: make(map[string]Store),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Upsert implements Directory.
func (d *MemoryDirectory) Upsert(_ context.Context, store *Store) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	stored := *store
	stored.UpdatedAt = now

	if existing, ok := d.byKey[store.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.LastSyncedAt = existing.LastSyncedAt
		stored.NeedsReconnection = existing.NeedsReconnection
	} else {
		stored.CreatedAt = now
	}
	d.byKey[store.ID] = stored
	return nil
}

// Get implements Directory.
func (d *MemoryDirectory) Get(_ context.Context, id string) (*Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	store, ok := d.byKey[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := store
	return &out, nil
}

// ListActive implements Directory.
func (d *MemoryDirectory) ListActive(_ context.Context) ([]Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Store
	for _, store := range d.byKey {
		if store.Active {
			out = append(out, store)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Deactivate implements Directory.
func (d *MemoryDirectory) Deactivate(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	store, ok := d.byKey[id]
	if !ok {
		return nil
	}
	store.Active = false
	store.UpdatedAt = d.now()
	d.byKey[id] = store
	return nil
}

// UpdateCredential implements Directory.
func (d *MemoryDirectory) UpdateCredential(_ context.Context, id string, accessToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	store, ok := d.byKey[id]
	if !ok {
		return ErrNotFound
	}
	store.AccessToken = accessToken
	store.NeedsReconnection = false
	store.UpdatedAt = d.now()
	d.byKey[id] = store
	return nil
}

// MarkNeedsReconnection implements Directory.
func (d *MemoryDirectory) MarkNeedsReconnection(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	store, ok := d.byKey[id]
	if !ok {
		return ErrNotFound
	}
	if store.NeedsReconnection {
		return nil
	}
	store.NeedsReconnection = true
	store.UpdatedAt = d.now()
	d.byKey[id] = store
	return nil
}

// SetLastSyncedAt implements Directory.
func (d *MemoryDirectory) SetLastSyncedAt(_ context.Context, id string, ts time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	store, ok := d.byKey[id]
	if !ok {
		return ErrNotFound
	}
	store.LastSyncedAt = &ts
	store.UpdatedAt = d.now()
	d.byKey[id] = store
	return nil
}
