package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/merchantiq/storesync/internal/commerce"
	"github.com/merchantiq/storesync/internal/index"
)

// CommerceBackend is a fake storefront platform admin API. It serves
// GET /stores/{storeID}/{entityType} and can be driven into failure
// modes per entity type or blocked to hold a sync run open.
type CommerceBackend struct {
	mu          sync.Mutex
	server      *httptest.Server
	entities    map[commerce.EntityType][]commerce.Entity
	failAll     int
	failPerType map[commerce.EntityType]int
	wantToken   string
	blocked     chan struct{}
	requests    []string
}

// NewCommerceBackend starts a fake platform API with no data.
func NewCommerceBackend() *CommerceBackend {
	b := &CommerceBackend{
		entities:    make(map[commerce.EntityType][]commerce.Entity),
		failPerType: make(map[commerce.EntityType]int),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// URL returns the backend's base URL.
func (b *CommerceBackend) URL() string {
	return b.server.URL
}

// Close releases any blocked requests and shuts the backend down.
func (b *CommerceBackend) Close() {
	b.Release()
	b.server.Close()
}

// SetEntities replaces the records served for one entity type.
func (b *CommerceBackend) SetEntities(entityType commerce.EntityType, entities []commerce.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[entityType] = entities
}

// FailAllWith forces every fetch to answer with the given status.
// A zero status restores normal behavior.
func (b *CommerceBackend) FailAllWith(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = status
}

// FailTypeWith forces fetches of one entity type to answer with the
// given status.
func (b *CommerceBackend) FailTypeWith(entityType commerce.EntityType, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPerType[entityType] = status
}

// RequireToken makes the backend reject requests whose bearer token
// does not match.
func (b *CommerceBackend) RequireToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wantToken = token
}

// Block makes every fetch hang until Release is called. It models a
// slow platform holding a sync run (and its lock) open.
func (b *CommerceBackend) Block() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked == nil {
		b.blocked = make(chan struct{})
	}
}

// Release unblocks fetches held by Block. Safe to call when nothing
// is blocked.
func (b *CommerceBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked != nil {
		close(b.blocked)
		b.blocked = nil
	}
}

// Requests returns the path and query of every fetch observed.
func (b *CommerceBackend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.requests))
	copy(out, b.requests)
	return out
}

func (b *CommerceBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, r.URL.RequestURI())
	blocked := b.blocked
	failAll := b.failAll
	wantToken := b.wantToken
	b.mu.Unlock()

	if blocked != nil {
		select {
		case <-blocked:
		case <-r.Context().Done():
			return
		}
	}

	if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Expected shape: /stores/{storeID}/{entityType}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "stores" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entityType := commerce.EntityType(parts[2])

	b.mu.Lock()
	status := b.failPerType[entityType]
	records := b.entities[entityType]
	b.mu.Unlock()

	if failAll != 0 {
		w.WriteHeader(failAll)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": records})
}

// IndexBackend is a fake search index service. It stores upserted
// documents per namespace and records namespace deletions.
type IndexBackend struct {
	mu         sync.Mutex
	server     *httptest.Server
	namespaces map[string]map[string]index.Document
	deleted    []string
	failAll    int
}

// NewIndexBackend starts an empty fake index service.
func NewIndexBackend() *IndexBackend {
	b := &IndexBackend{
		namespaces: make(map[string]map[string]index.Document),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// URL returns the backend's base URL.
func (b *IndexBackend) URL() string {
	return b.server.URL
}

// Close shuts the backend down.
func (b *IndexBackend) Close() {
	b.server.Close()
}

// FailAllWith forces every index call to answer with the given status.
// A zero status restores normal behavior.
func (b *IndexBackend) FailAllWith(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAll = status
}

// DocumentCount returns how many documents one namespace holds.
func (b *IndexBackend) DocumentCount(namespace string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.namespaces[namespace])
}

// Document returns one stored document and whether it exists.
func (b *IndexBackend) Document(namespace, id string) (index.Document, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.namespaces[namespace][id]
	return doc, ok
}

// DeletedNamespaces returns every namespace removed so far.
func (b *IndexBackend) DeletedNamespaces() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.deleted))
	copy(out, b.deleted)
	return out
}

func (b *IndexBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	failAll := b.failAll
	b.mu.Unlock()

	if failAll != 0 {
		w.WriteHeader(failAll)
		return
	}

	// Expected shapes:
	//   PUT    /namespaces/{ns}/documents
	//   DELETE /namespaces/{ns}
	//   GET    /namespaces/{ns}/stats
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "namespaces" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	namespace := parts[1]

	switch {
	case r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "documents":
		var payload struct {
			Documents []index.Document `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		if b.namespaces[namespace] == nil {
			b.namespaces[namespace] = make(map[string]index.Document)
		}
		for _, doc := range payload.Documents {
			b.namespaces[namespace][doc.ID] = doc
		}
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete && len(parts) == 2:
		b.mu.Lock()
		_, existed := b.namespaces[namespace]
		delete(b.namespaces, namespace)
		b.deleted = append(b.deleted, namespace)
		b.mu.Unlock()
		if !existed {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "stats":
		b.mu.Lock()
		count := len(b.namespaces[namespace])
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(index.Stats{
			Namespace:     namespace,
			DocumentCount: count,
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
