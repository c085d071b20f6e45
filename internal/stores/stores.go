// Package stores holds the registered storefront records and their
// credentials. Every other component keys its work by store ID; this
// package is the source of truth for which stores exist, whether they are
// active, and whether their credentials need operator attention.
package stores

import (
	"context"
	"errors"
	"time"
)

// Store is a registered storefront.
type Store struct {
	// ID uniquely identifies the store.
	ID string `json:"id"`

	// Name is the operator-facing display name.
	Name string `json:"name"`

	// Platform names the commerce platform the store runs on,
	// e.g. "shopware" or "commercetools".
	Platform string `json:"platform"`

	// AccessToken is the admin API credential. Write-only through the
	// API surface; never serialized outward.
	AccessToken string `json:"-"`

	// Active gates scheduling; deactivated stores keep their history.
	Active bool `json:"active"`

	// NeedsReconnection marks that syncing is paused until an operator
	// supplies fresh credentials.
	NeedsReconnection bool `json:"needs_reconnection"`

	// LastSyncedAt is when the store last completed a sync; nil before
	// the first successful run.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned when no store exists for the requested ID.
var ErrNotFound = errors.New("store not found")

// Directory is the persistence contract for store records.
// Implementations stamp CreatedAt on first write and UpdatedAt on every
// write.
type Directory interface {
	// Upsert creates the store or refreshes its registration fields
	// (name, platform, credential, active). Sync bookkeeping fields
	// (last synced, reconnection flag) survive re-registration.
	Upsert(ctx context.Context, store *Store) error

	// Get returns the store for id or ErrNotFound.
	Get(ctx context.Context, id string) (*Store, error)

	// ListActive returns all active stores ordered by ID.
	ListActive(ctx context.Context) ([]Store, error)

	// Deactivate clears the active flag; the record stays for history.
	// Deactivating an absent store is a no-op.
	Deactivate(ctx context.Context, id string) error

	// UpdateCredential stores a fresh access token and clears the
	// reconnection flag in the same write.
	UpdateCredential(ctx context.Context, id string, accessToken string) error

	// MarkNeedsReconnection flags the store for operator attention.
	// Flagging an already flagged store is a no-op.
	MarkNeedsReconnection(ctx context.Context, id string) error

	// SetLastSyncedAt records when the store last completed a sync.
	SetLastSyncedAt(ctx context.Context, id string, ts time.Time) error
}
