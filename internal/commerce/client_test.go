package commerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantiq/storesync/internal/resilience"
)

func TestFetchEntities(t *testing.T) {
	t.Parallel()

	t.Run("fetches and decodes entities", func(t *testing.T) {
		t.Parallel()

		var gotPath, gotAuth, gotSince string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			gotSince = r.URL.Query().Get("updated_since")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": [
				{"id": "p-1", "updated_at": "2025-01-15T09:00:00Z", "attributes": {"title": "Tent"}},
				{"id": "p-2", "updated_at": "2025-01-15T09:05:00Z", "attributes": {"title": "Stove"}}
			]}`))
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		since := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

		entities, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityProducts, &since)
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, "p-1", entities[0].ID)
		assert.Equal(t, "Tent", entities[0].Attributes["title"])
		assert.Equal(t, "/stores/store-1/products", gotPath)
		assert.Equal(t, "Bearer token-1", gotAuth)
		assert.Equal(t, "2025-01-14T00:00:00Z", gotSince)
	})

	t.Run("full export omits the since parameter", func(t *testing.T) {
		t.Parallel()

		var hadSince bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hadSince = r.URL.Query().Has("updated_since")
			_, _ = w.Write([]byte(`{"data": []}`))
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		entities, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityOrders, nil)
		require.NoError(t, err)
		assert.Empty(t, entities)
		assert.False(t, hadSince)
	})

	t.Run("maps auth statuses to non-retryable auth errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		_, err := client.FetchEntities(context.Background(), "expired", "store-1", EntityProducts, nil)
		require.Error(t, err)
		assert.Equal(t, resilience.KindAuth, resilience.Classify(err))
		assert.False(t, resilience.Retryable(err))
	})

	t.Run("maps throttling to a rate limit error with the server wait", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		_, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityCustomers, nil)
		require.Error(t, err)
		assert.Equal(t, resilience.KindRateLimit, resilience.Classify(err))
		assert.True(t, resilience.Retryable(err))
		assert.Equal(t, 7*time.Second, resilience.RetryAfterHint(err))
	})

	t.Run("maps server errors to retryable network errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		_, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityProducts, nil)
		require.Error(t, err)
		assert.Equal(t, resilience.KindNetwork, resilience.Classify(err))
		assert.True(t, resilience.Retryable(err))
	})

	t.Run("maps malformed payloads to validation errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data": [`))
		}))
		defer server.Close()

		client := NewHTTPClient(server.URL)
		_, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityProducts, nil)
		require.Error(t, err)
		assert.Equal(t, resilience.KindValidation, resilience.Classify(err))
	})

	t.Run("maps transport failures to network errors", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		server.Close() // refuse connections

		client := NewHTTPClient(server.URL)
		_, err := client.FetchEntities(context.Background(), "token-1", "store-1", EntityProducts, nil)
		require.Error(t, err)
		assert.Equal(t, resilience.KindNetwork, resilience.Classify(err))
	})
}

func TestEntityTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []EntityType{EntityProducts, EntityOrders, EntityCustomers}, EntityTypes())
}
