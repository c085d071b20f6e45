package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/merchantiq/storesync/internal/resilience"
)

// Credentials resolves store API credentials for outbound platform calls.
// Failures are typed auth errors so callers abort instead of retrying.
type Credentials struct {
	dir Directory
}

// NewCredentials creates a credential provider over the store directory.
func NewCredentials(dir Directory) *Credentials {
	return &Credentials{dir: dir}
}

// ValidCredential returns the access token for storeID. It returns a
// typed auth error when the store is unknown, inactive, flagged for
// reconnection, or has no token on file.
func (c *Credentials) ValidCredential(ctx context.Context, storeID string) (string, error) {
	store, err := c.dir.Get(ctx, storeID)
	if errors.Is(err, ErrNotFound) {
		return "", resilience.NewError(resilience.KindAuth,
			fmt.Sprintf("store %s is not registered", storeID), err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up store %s: %w", storeID, err)
	}

	if !store.Active {
		return "", resilience.NewError(resilience.KindAuth,
			fmt.Sprintf("store %s is deactivated", storeID), nil)
	}
	if store.NeedsReconnection {
		return "", resilience.NewError(resilience.KindAuth,
			fmt.Sprintf("store %s requires credential reconnection", storeID), nil)
	}
	if store.AccessToken == "" {
		return "", resilience.NewError(resilience.KindAuth,
			fmt.Sprintf("store %s has no credential on file", storeID), nil)
	}
	return store.AccessToken, nil
}
