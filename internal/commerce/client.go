// Package commerce is the REST adapter over storefront platform admin
// APIs. It fetches raw domain entities for the sync pipeline and maps
// every failure mode to a typed resilience error so the retry and breaker
// layers can act on classification alone.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/merchantiq/storesync/internal/resilience"
)

// EntityType names a class of storefront data the pipeline syncs.
type EntityType string

// Entity types fetched per sync run.
const (
	EntityProducts  EntityType = "products"
	EntityOrders    EntityType = "orders"
	EntityCustomers EntityType = "customers"
)

// EntityTypes returns the canonical fetch order.
func EntityTypes() []EntityType {
	return []EntityType{EntityProducts, EntityOrders, EntityCustomers}
}

// Entity is one raw record from a platform admin API.
type Entity struct {
	// ID is the platform-assigned identifier.
	ID string `json:"id"`

	// UpdatedAt is the platform-side modification time.
	UpdatedAt time.Time `json:"updated_at"`

	// Attributes carries the platform payload untouched; the transform
	// stage decides what reaches the index.
	Attributes map[string]any `json:"attributes"`
}

// Source fetches entities from a store's platform.
type Source interface {
	// FetchEntities returns all entities of one type changed since the
	// given time; a nil since requests a full export.
	FetchEntities(ctx context.Context, credential string, storeID string, entityType EntityType, since *time.Time) ([]Entity, error)
}

const (
	// DefaultTimeout bounds one fetch request.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize caps a fetch response body (32MB).
	maxResponseSize = 32 * 1024 * 1024

	userAgent = "storesync/1.0"
)

// HTTPClient is the default Source over a platform admin REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// NewHTTPClient creates a platform API client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entityEnvelope is the platform list response.
type entityEnvelope struct {
	Data []Entity `json:"data"`
}

// FetchEntities implements Source.
func (c *HTTPClient) FetchEntities(ctx context.Context, credential string, storeID string, entityType EntityType, since *time.Time) ([]Entity, error) {
	endpoint, err := c.entityURL(storeID, entityType, since)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, resilience.NewError(resilience.Classify(err),
			fmt.Sprintf("fetch %s for store %s failed", entityType, storeID), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		retryAfter := resilience.RetryAfterFromHeader(resp.Header.Get("Retry-After"), time.Now())
		return nil, resilience.FromHTTPStatus(resp.StatusCode,
			fmt.Sprintf("fetch %s for store %s: %s", entityType, storeID, resp.Status), retryAfter)
	}

	body, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope entityEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, resilience.NewError(resilience.KindValidation,
			fmt.Sprintf("malformed %s response for store %s", entityType, storeID), err)
	}
	return envelope.Data, nil
}

func (c *HTTPClient) entityURL(storeID string, entityType EntityType, since *time.Time) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid platform base URL: %w", err)
	}
	endpoint := base.JoinPath("stores", storeID, string(entityType))

	if since != nil {
		q := endpoint.Query()
		q.Set("updated_since", since.UTC().Format(time.RFC3339))
		endpoint.RawQuery = q.Encode()
	}
	return endpoint.String(), nil
}

// readLimited reads a response body, rejecting oversized payloads instead
// of buffering them.
func readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, maxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, fmt.Errorf("response exceeds maximum allowed size of %d bytes", maxResponseSize)
	}
	return body, nil
}
