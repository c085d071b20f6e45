// Package index is the REST client for the search index service. The
// sync pipeline writes transformed documents into per-store namespaces
// and tears namespaces down when a store is removed.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/merchantiq/storesync/internal/resilience"
)

// Namespace returns the index partition for one store's entity type.
func Namespace(storeID string, entityType string) string {
	return fmt.Sprintf("store-%s-%s", storeID, entityType)
}

// Document is one index-ready record.
type Document struct {
	// ID is stable across syncs so upserts replace prior versions.
	ID string `json:"id"`

	// Fields is the searchable payload.
	Fields map[string]any `json:"fields"`
}

// Stats describes one namespace.
type Stats struct {
	Namespace     string `json:"namespace"`
	DocumentCount int    `json:"document_count"`
}

// Sink is the index service contract used by the sync pipeline.
type Sink interface {
	// Upsert writes documents into the namespace, replacing matching IDs.
	Upsert(ctx context.Context, namespace string, docs []Document) error

	// DeleteNamespace removes the namespace and all its documents.
	// Deleting an absent namespace is a no-op.
	DeleteNamespace(ctx context.Context, namespace string) error

	// DescribeStats reports the namespace's document count.
	DescribeStats(ctx context.Context, namespace string) (*Stats, error)
}

// DefaultTimeout bounds one index request.
const DefaultTimeout = 30 * time.Second

// HTTPSink is the default Sink over the index service REST API.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// SinkOption configures an HTTPSink.
type SinkOption func(*HTTPSink)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(client *http.Client) SinkOption {
	return func(s *HTTPSink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) SinkOption {
	return func(s *HTTPSink) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// NewHTTPSink creates an index client rooted at baseURL.
func NewHTTPSink(baseURL string, opts ...SinkOption) *HTTPSink {
	s := &HTTPSink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type upsertRequest struct {
	Documents []Document `json:"documents"`
}

// Upsert implements Sink.
func (s *HTTPSink) Upsert(ctx context.Context, namespace string, docs []Document) error {
	endpoint, err := s.namespaceURL(namespace, "documents")
	if err != nil {
		return err
	}

	body, err := json.Marshal(upsertRequest{Documents: docs})
	if err != nil {
		return fmt.Errorf("failed to encode upsert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return resilience.NewError(resilience.Classify(err),
			fmt.Sprintf("index upsert into %s failed", namespace), err)
	}
	defer drainBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return s.statusError(resp, fmt.Sprintf("index upsert into %s", namespace))
	}
	return nil
}

// DeleteNamespace implements Sink.
func (s *HTTPSink) DeleteNamespace(ctx context.Context, namespace string) error {
	endpoint, err := s.namespaceURL(namespace)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return resilience.NewError(resilience.Classify(err),
			fmt.Sprintf("index namespace delete of %s failed", namespace), err)
	}
	defer drainBody(resp)

	// Absent namespaces are already deleted.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return s.statusError(resp, fmt.Sprintf("index namespace delete of %s", namespace))
	}
	return nil
}

// DescribeStats implements Sink.
func (s *HTTPSink) DescribeStats(ctx context.Context, namespace string) (*Stats, error) {
	endpoint, err := s.namespaceURL(namespace, "stats")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewError(resilience.Classify(err),
			fmt.Sprintf("index stats for %s failed", namespace), err)
	}
	defer drainBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, s.statusError(resp, fmt.Sprintf("index stats for %s", namespace))
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, resilience.NewError(resilience.KindValidation,
			fmt.Sprintf("malformed stats response for %s", namespace), err)
	}
	return &stats, nil
}

func (s *HTTPSink) namespaceURL(namespace string, segments ...string) (string, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid index base URL: %w", err)
	}
	parts := append([]string{"namespaces", namespace}, segments...)
	return base.JoinPath(parts...).String(), nil
}

func (s *HTTPSink) statusError(resp *http.Response, message string) error {
	retryAfter := resilience.RetryAfterFromHeader(resp.Header.Get("Retry-After"), time.Now())
	return resilience.FromHTTPStatus(resp.StatusCode, fmt.Sprintf("%s: %s", message, resp.Status), retryAfter)
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
