// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables read by the service.
const EnvPrefix = "STORESYNC"

const (
	// StorageMemory keeps jobs, store records, and locks in process memory
	StorageMemory = "memory"

	// StoragePostgres persists jobs, store records, and locks in PostgreSQL
	StoragePostgres = "postgres"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ServiceName identifies this instance in logs and telemetry
	// Defaults to "storesync" if not specified
	ServiceName string `yaml:"serviceName,omitempty"`

	// Server holds HTTP listener settings
	Server ServerConfig `yaml:"server,omitempty"`

	// Storage selects where jobs, store records, and locks live
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Scheduler tunes the background scheduling loop
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`

	// Resilience tunes retries and circuit breakers per dependency
	Resilience ResilienceConfig `yaml:"resilience,omitempty"`

	// Commerce is the commerce platform API connection
	Commerce CommerceConfig `yaml:"commerce"`

	// Index is the search index service connection
	Index IndexConfig `yaml:"index"`

	// Telemetry configures the OTLP metrics exporter
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ServerConfig defines HTTP listener settings
type ServerConfig struct {
	// Address is the listen address for the HTTP API
	// Defaults to ":8080" if not specified
	Address string `yaml:"address,omitempty"`
}

// GetAddress returns the listen address, using ":8080" if not specified
func (s *ServerConfig) GetAddress() string {
	if s.Address == "" {
		return ":8080"
	}
	return s.Address
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Backend is the persistence backend (memory or postgres)
	// Defaults to memory, which is suitable for a single instance only
	Backend string `yaml:"backend,omitempty"`

	// Database holds PostgreSQL settings; required when backend is postgres
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Redis, when set, moves the lock store to Redis so locks are shared
	// across instances independently of the job backend
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// GetBackend returns the storage backend, using memory if not specified
func (s *StorageConfig) GetBackend() string {
	if s.Backend == "" {
		return StorageMemory
	}
	return s.Backend
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// MigrationUser is the database user for schema migrations
	// Defaults to User when not set
	MigrationUser string `yaml:"migrationUser,omitempty"`

	// DynamicAuth configures short-lived credentials resolved per
	// connection instead of a static password
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a dynamic database authentication method
type DynamicAuthConfig struct {
	// AWSRDSIAM enables AWS RDS IAM token authentication
	AWSRDSIAM *DynamicAuthAWSRDSIAM `yaml:"awsRdsIam,omitempty"`
}

// DynamicAuthAWSRDSIAM configures AWS RDS IAM token authentication
type DynamicAuthAWSRDSIAM struct {
	// Region is the AWS region of the database, or "detect" to resolve
	// it from instance metadata
	Region string `yaml:"region"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from STORESYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	// Priority 2: Check environment variable
	if envPassword := os.Getenv("STORESYNC_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or STORESYNC_DATABASE_PASSWORD environment variable",
	)
}

// GetMigrationUser returns the user for schema migrations, falling back
// to the application user.
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser != "" {
		return d.MigrationUser
	}
	return d.User
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely. With dynamic auth the
// password is omitted; a per-connection hook injects a fresh token instead.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionStringWithAuth(d.User, ""), nil
	}

	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	return d.BuildConnectionStringWithAuth(d.User, password), nil
}

// BuildConnectionStringWithAuth builds a PostgreSQL connection string for the
// given user and password. An empty password yields a passwordless string so
// token-based or pgpass authentication can take over.
func (d *DatabaseConfig) BuildConnectionStringWithAuth(user, password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	userInfo := user
	if password != "" {
		// URL-escape the password to handle special characters
		userInfo = user + ":" + url.QueryEscape(password)
	}

	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		userInfo,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

// GetConnMaxLifetime returns the parsed connection lifetime, or zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDurationOrZero(d.ConnMaxLifetime)
}

// RedisConfig defines Redis connection settings for the shared lock store
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string `yaml:"address"`

	// PasswordFile is the path to a file containing the Redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// DB is the Redis logical database number
	DB int `yaml:"db,omitempty"`
}

// GetPassword returns the Redis password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from STORESYNC_REDIS_PASSWORD environment variable
//
// An unauthenticated Redis needs neither; the empty password is valid.
func (r *RedisConfig) GetPassword() (string, error) {
	if r.PasswordFile != "" {
		cleanPath := filepath.Clean(r.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", r.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	return os.Getenv("STORESYNC_REDIS_PASSWORD"), nil
}

// SchedulerConfig tunes the background scheduling loop
type SchedulerConfig struct {
	// TickInterval is the base pause between scheduling passes (e.g., "60s")
	TickInterval string `yaml:"tickInterval,omitempty"`

	// BatchSize is how many due jobs one pass dispatches at once
	BatchSize int `yaml:"batchSize,omitempty"`

	// BatchDelay is the pause between dispatch batches (e.g., "2s")
	BatchDelay string `yaml:"batchDelay,omitempty"`

	// MaxRetries is how many consecutive failures pause a job
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// RetryBackoffBase seeds the exponential failure backoff (e.g., "1m")
	RetryBackoffBase string `yaml:"retryBackoffBase,omitempty"`

	// Intervals re-arm completed jobs per priority
	Intervals *IntervalsConfig `yaml:"intervals,omitempty"`
}

// IntervalsConfig sets the re-arm interval per job priority
type IntervalsConfig struct {
	// High is the re-arm interval for high priority jobs (e.g., "1h")
	High string `yaml:"high,omitempty"`

	// Medium is the re-arm interval for medium priority jobs (e.g., "6h")
	Medium string `yaml:"medium,omitempty"`

	// Low is the re-arm interval for low priority jobs (e.g., "24h")
	Low string `yaml:"low,omitempty"`
}

// GetTickInterval returns the parsed tick interval, or zero when unset
func (s *SchedulerConfig) GetTickInterval() time.Duration {
	return parseDurationOrZero(s.TickInterval)
}

// GetBatchDelay returns the parsed batch delay, or zero when unset
func (s *SchedulerConfig) GetBatchDelay() time.Duration {
	return parseDurationOrZero(s.BatchDelay)
}

// GetRetryBackoffBase returns the parsed backoff base, or zero when unset
func (s *SchedulerConfig) GetRetryBackoffBase() time.Duration {
	return parseDurationOrZero(s.RetryBackoffBase)
}

// GetIntervals returns the per-priority re-arm intervals. Unset values are
// zero; callers keep their own defaults.
func (s *SchedulerConfig) GetIntervals() (high, medium, low time.Duration) {
	if s.Intervals == nil {
		return 0, 0, 0
	}
	return parseDurationOrZero(s.Intervals.High),
		parseDurationOrZero(s.Intervals.Medium),
		parseDurationOrZero(s.Intervals.Low)
}

// ResilienceConfig tunes retries and circuit breakers per dependency
type ResilienceConfig struct {
	// Commerce guards calls to the commerce platform API
	Commerce *PolicyConfig `yaml:"commerce,omitempty"`

	// Index guards calls to the search index service
	Index *PolicyConfig `yaml:"index,omitempty"`
}

// PolicyConfig defines retry and circuit breaker settings for one dependency
type PolicyConfig struct {
	// MaxAttempts is the total number of tries per call, first included
	MaxAttempts int `yaml:"maxAttempts,omitempty"`

	// BaseDelay is the delay before the first retry (e.g., "500ms")
	BaseDelay string `yaml:"baseDelay,omitempty"`

	// MaxDelay caps the delay between retries (e.g., "30s")
	MaxDelay string `yaml:"maxDelay,omitempty"`

	// FailureThreshold is how many consecutive failures open the breaker
	FailureThreshold int `yaml:"failureThreshold,omitempty"`

	// ResetTimeout is how long an open breaker waits before a trial call
	ResetTimeout string `yaml:"resetTimeout,omitempty"`
}

// GetBaseDelay returns the parsed base delay, or zero when unset
func (p *PolicyConfig) GetBaseDelay() time.Duration {
	return parseDurationOrZero(p.BaseDelay)
}

// GetMaxDelay returns the parsed delay cap, or zero when unset
func (p *PolicyConfig) GetMaxDelay() time.Duration {
	return parseDurationOrZero(p.MaxDelay)
}

// GetResetTimeout returns the parsed reset timeout, or zero when unset
func (p *PolicyConfig) GetResetTimeout() time.Duration {
	return parseDurationOrZero(p.ResetTimeout)
}

// CommerceConfig defines the commerce platform API connection
type CommerceConfig struct {
	// BaseURL is the platform admin API base URL
	BaseURL string `yaml:"baseUrl"`

	// Timeout bounds each HTTP request to the platform (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// FetchTimeout bounds one entity type's full fetch during a sync run
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`
}

// GetTimeout returns the parsed request timeout, or zero when unset
func (c *CommerceConfig) GetTimeout() time.Duration {
	return parseDurationOrZero(c.Timeout)
}

// GetFetchTimeout returns the parsed per-entity fetch timeout, or zero when unset
func (c *CommerceConfig) GetFetchTimeout() time.Duration {
	return parseDurationOrZero(c.FetchTimeout)
}

// IndexConfig defines the search index service connection
type IndexConfig struct {
	// BaseURL is the index service base URL
	BaseURL string `yaml:"baseUrl"`

	// Timeout bounds each HTTP request to the index (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// BatchSize is how many documents one upsert call carries
	BatchSize int `yaml:"batchSize,omitempty"`
}

// GetTimeout returns the parsed request timeout, or zero when unset
func (i *IndexConfig) GetTimeout() time.Duration {
	return parseDurationOrZero(i.Timeout)
}

// TelemetryConfig defines OpenTelemetry metrics export settings
type TelemetryConfig struct {
	// Enabled turns on the OTLP metrics exporter; when false every
	// recorder is a no-op
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the OTLP HTTP collector endpoint (host:port)
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS for the exporter connection
	Insecure bool `yaml:"insecure,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetServiceName returns the service name, using "storesync" if not specified
func (c *Config) GetServiceName() string {
	if c.ServiceName == "" {
		return "storesync"
	}
	return c.ServiceName
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Resilience.validate(); err != nil {
		return err
	}
	if err := validateBaseURL(c.Commerce.BaseURL, "commerce.baseUrl"); err != nil {
		return err
	}
	if err := validateDuration(c.Commerce.Timeout, "commerce.timeout"); err != nil {
		return err
	}
	if err := validateDuration(c.Commerce.FetchTimeout, "commerce.fetchTimeout"); err != nil {
		return err
	}
	if err := validateBaseURL(c.Index.BaseURL, "index.baseUrl"); err != nil {
		return err
	}
	if err := validateDuration(c.Index.Timeout, "index.timeout"); err != nil {
		return err
	}
	if c.Index.BatchSize < 0 {
		return fmt.Errorf("index.batchSize must not be negative")
	}

	if c.Telemetry != nil && c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}

// validate checks the storage backend selection and its settings
func (s *StorageConfig) validate() error {
	switch s.GetBackend() {
	case StorageMemory:
	case StoragePostgres:
		if s.Database == nil {
			return fmt.Errorf("storage.database is required when backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q", StorageMemory, StoragePostgres, s.Backend)
	}

	if s.Database != nil {
		if err := s.Database.validate(); err != nil {
			return err
		}
	}

	if s.Redis != nil && s.Redis.Address == "" {
		return fmt.Errorf("storage.redis.address is required")
	}

	return nil
}

// validate checks the database connection settings
func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("storage.database.host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("storage.database.port is required")
	}
	if d.User == "" {
		return fmt.Errorf("storage.database.user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("storage.database.database is required")
	}
	if d.DynamicAuth != nil {
		if d.DynamicAuth.AWSRDSIAM == nil {
			return fmt.Errorf("storage.database.dynamicAuth must configure a supported method (awsRdsIam)")
		}
		if d.DynamicAuth.AWSRDSIAM.Region == "" {
			return fmt.Errorf("storage.database.dynamicAuth.awsRdsIam.region is required")
		}
	}
	return validateDuration(d.ConnMaxLifetime, "storage.database.connMaxLifetime")
}

// validate checks the scheduling loop settings
func (s *SchedulerConfig) validate() error {
	if s.BatchSize < 0 {
		return fmt.Errorf("scheduler.batchSize must not be negative")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("scheduler.maxRetries must not be negative")
	}
	if err := validateDuration(s.TickInterval, "scheduler.tickInterval"); err != nil {
		return err
	}
	if err := validateDuration(s.BatchDelay, "scheduler.batchDelay"); err != nil {
		return err
	}
	if err := validateDuration(s.RetryBackoffBase, "scheduler.retryBackoffBase"); err != nil {
		return err
	}
	if s.Intervals != nil {
		if err := validateDuration(s.Intervals.High, "scheduler.intervals.high"); err != nil {
			return err
		}
		if err := validateDuration(s.Intervals.Medium, "scheduler.intervals.medium"); err != nil {
			return err
		}
		if err := validateDuration(s.Intervals.Low, "scheduler.intervals.low"); err != nil {
			return err
		}
	}
	return nil
}

// validate checks both per-dependency policies
func (r *ResilienceConfig) validate() error {
	if err := r.Commerce.validate("resilience.commerce"); err != nil {
		return err
	}
	return r.Index.validate("resilience.index")
}

// validate checks one dependency's retry and breaker settings
func (p *PolicyConfig) validate(prefix string) error {
	if p == nil {
		return nil
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%s.maxAttempts must not be negative", prefix)
	}
	if p.FailureThreshold < 0 {
		return fmt.Errorf("%s.failureThreshold must not be negative", prefix)
	}
	if err := validateDuration(p.BaseDelay, prefix+".baseDelay"); err != nil {
		return err
	}
	if err := validateDuration(p.MaxDelay, prefix+".maxDelay"); err != nil {
		return err
	}
	return validateDuration(p.ResetTimeout, prefix+".resetTimeout")
}

// validateDuration checks that a non-empty duration string parses
func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '5m'): %w", field, err)
	}
	return nil
}

// validateBaseURL checks that a required endpoint is an absolute URL
func validateBaseURL(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL with host, got %q", field, value)
	}
	return nil
}

// parseDurationOrZero parses a config duration, returning zero when unset.
// Values are validated at load time, so parse errors collapse to zero here.
func parseDurationOrZero(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
