package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	syncapp "github.com/merchantiq/storesync/internal/app"
	"github.com/merchantiq/storesync/internal/config"
)

// ServerTestHelper manages the sync API server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *syncapp.SyncApp
	port       int
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string, port int) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		port: port,
	}
}

// StartServer starts the sync API server programmatically
func (s *ServerTestHelper) StartServer() error {
	// Load configuration
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Build the application
	app, err := syncapp.NewSyncApp(s.ctx,
		syncapp.WithConfig(cfg),
		syncapp.WithAddress(fmt.Sprintf("127.0.0.1:%d", s.port)),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	s.app = app

	// Start the server in a goroutine (non-blocking)
	go func() {
		if err := app.Start(); err != nil {
			// Log error but don't fail the test here
			// The test will fail when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the sync API server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// RegisterStore makes a POST request to /api/v1/stores
func (s *ServerTestHelper) RegisterStore(id, name, platform, accessToken string) (*http.Response, error) {
	return s.postJSON("/api/v1/stores", map[string]string{
		"id":          id,
		"name":        name,
		"platform":    platform,
		"accessToken": accessToken,
	})
}

// RemoveStore makes a DELETE request to /api/v1/stores/{storeID}
func (s *ServerTestHelper) RemoveStore(storeID string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/v1/stores/%s", s.baseURL, storeID), nil)
	if err != nil {
		return nil, err
	}
	return s.httpClient.Do(req)
}

// Reconnect makes a POST request to /api/v1/stores/{storeID}/reconnect
func (s *ServerTestHelper) Reconnect(storeID, accessToken string) (*http.Response, error) {
	return s.postJSON(fmt.Sprintf("/api/v1/stores/%s/reconnect", storeID), map[string]string{
		"accessToken": accessToken,
	})
}

// TriggerSync makes a POST request to /api/v1/sync/trigger
func (s *ServerTestHelper) TriggerSync(storeID string) (*http.Response, error) {
	return s.postJSON("/api/v1/sync/trigger", map[string]string{
		"storeId": storeID,
	})
}

// GetJobs makes a GET request to /api/v1/sync/jobs
func (s *ServerTestHelper) GetJobs() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/api/v1/sync/jobs")
}

// GetJob makes a GET request to /api/v1/sync/jobs/{storeID}
func (s *ServerTestHelper) GetJob(storeID string) (*http.Response, error) {
	return s.httpClient.Get(fmt.Sprintf("%s/api/v1/sync/jobs/%s", s.baseURL, storeID))
}

// GetLocks makes a GET request to /api/v1/locks
func (s *ServerTestHelper) GetLocks() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/api/v1/locks")
}

// GetHealth makes a GET request to /health
func (s *ServerTestHelper) GetHealth() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/health")
}

// GetReadiness makes a GET request to /readiness
func (s *ServerTestHelper) GetReadiness() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/readiness")
}

// GetVersion makes a GET request to /version
func (s *ServerTestHelper) GetVersion() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/version")
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

func (s *ServerTestHelper) postJSON(path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return s.httpClient.Post(s.baseURL+path, "application/json", bytes.NewReader(body))
}

// DecodeJSON reads a response body into the given value and closes it.
func DecodeJSON(resp *http.Response, into any) {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(json.Unmarshal(body, into)).To(gomega.Succeed(), "body: %s", string(body))
}

// FreePort asks the kernel for an unused TCP port.
func FreePort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = listener.Close()
	}()
	return listener.Addr().(*net.TCPAddr).Port
}

// ConfigOverrides tunes scheduler and resilience knobs per test.
type ConfigOverrides struct {
	TickInterval     string
	MaxRetries       string
	RetryBackoffBase string
	MaxAttempts      string
}

// WriteConfigYAML writes a service configuration pointing at the given
// fake backends. The in-memory storage backend keeps each test hermetic.
func WriteConfigYAML(dir, commerceURL, indexURL string, overrides *ConfigOverrides) string {
	if overrides == nil {
		overrides = &ConfigOverrides{}
	}
	pick := func(value, fallback string) string {
		if value != "" {
			return value
		}
		return fallback
	}

	// The quiet 1h tick keeps the background loop out of manual-trigger
	// tests; scheduler tests override it. A single fetch attempt makes
	// retry counts deterministic, and the high breaker threshold keeps
	// repeated-failure tests from tripping it.
	configContent := fmt.Sprintf(`serviceName: storesync-integration

storage:
  backend: memory

scheduler:
  tickInterval: %s
  batchSize: 3
  batchDelay: 10ms
  maxRetries: %s
  retryBackoffBase: %s

resilience:
  commerce:
    maxAttempts: %s
    baseDelay: 5ms
    maxDelay: 20ms
    failureThreshold: 1000
    resetTimeout: 50ms
  index:
    maxAttempts: %s
    baseDelay: 5ms
    maxDelay: 20ms
    failureThreshold: 1000
    resetTimeout: 50ms

commerce:
  baseUrl: %s
  timeout: 10s
  fetchTimeout: 10s

index:
  baseUrl: %s
  timeout: 10s
`,
		pick(overrides.TickInterval, "1h"),
		pick(overrides.MaxRetries, "3"),
		pick(overrides.RetryBackoffBase, "1ms"),
		pick(overrides.MaxAttempts, "1"),
		pick(overrides.MaxAttempts, "1"),
		commerceURL,
		indexURL,
	)

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return configPath
}
