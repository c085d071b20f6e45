package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantiq/storesync/internal/resilience"
)

func TestCredentialsValidCredential(t *testing.T) {
	t.Parallel()

	newProvider := func(t *testing.T, store *Store) *Credentials {
		t.Helper()
		dir := NewMemoryDirectory()
		if store != nil {
			require.NoError(t, dir.Upsert(context.Background(), store))
		}
		return NewCredentials(dir)
	}

	requireAuthError := func(t *testing.T, err error) {
		t.Helper()
		require.Error(t, err)
		assert.Equal(t, resilience.KindAuth, resilience.Classify(err))
		assert.False(t, resilience.Retryable(err))
	}

	t.Run("returns the token for a healthy store", func(t *testing.T) {
		t.Parallel()
		creds := newProvider(t, &Store{ID: "store-1", AccessToken: "token-1", Active: true})

		token, err := creds.ValidCredential(context.Background(), "store-1")
		require.NoError(t, err)
		assert.Equal(t, "token-1", token)
	})

	t.Run("unknown store is an auth error", func(t *testing.T) {
		t.Parallel()
		creds := newProvider(t, nil)

		_, err := creds.ValidCredential(context.Background(), "store-1")
		requireAuthError(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("deactivated store is an auth error", func(t *testing.T) {
		t.Parallel()
		creds := newProvider(t, &Store{ID: "store-1", AccessToken: "token-1", Active: false})

		_, err := creds.ValidCredential(context.Background(), "store-1")
		requireAuthError(t, err)
	})

	t.Run("store pending reconnection is an auth error", func(t *testing.T) {
		t.Parallel()
		dir := NewMemoryDirectory()
		ctx := context.Background()
		require.NoError(t, dir.Upsert(ctx, &Store{ID: "store-1", AccessToken: "token-1", Active: true}))
		require.NoError(t, dir.MarkNeedsReconnection(ctx, "store-1"))
		creds := NewCredentials(dir)

		_, err := creds.ValidCredential(ctx, "store-1")
		requireAuthError(t, err)
	})

	t.Run("missing token is an auth error", func(t *testing.T) {
		t.Parallel()
		creds := newProvider(t, &Store{ID: "store-1", Active: true})

		_, err := creds.ValidCredential(context.Background(), "store-1")
		requireAuthError(t, err)
	})
}
