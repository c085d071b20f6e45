package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"

	"github.com/merchantiq/storesync/internal/api"
	"github.com/merchantiq/storesync/internal/app/storage"
	"github.com/merchantiq/storesync/internal/commerce"
	"github.com/merchantiq/storesync/internal/config"
	"github.com/merchantiq/storesync/internal/index"
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/resilience"
	"github.com/merchantiq/storesync/internal/scheduler"
	"github.com/merchantiq/storesync/internal/stores"
	pkgsync "github.com/merchantiq/storesync/internal/sync"
	"github.com/merchantiq/storesync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig builds a SyncApp using the builder pattern
// It supports dependency injection for testing while providing sensible defaults for production
type syncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	syncManager    pkgsync.Manager
	storageFactory storage.Factory

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider metric.MeterProvider
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewSyncApp creates a new builder with the given configuration
func NewSyncApp(
	ctx context.Context,
	opts ...SyncAppOptions,
) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	// Create storage factory (single decision point for memory vs postgres)
	// This factory creates all storage-dependent components
	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded && cfg.storageFactory != nil {
			cfg.storageFactory.Cleanup()
		}
	}()

	// Build the scheduler, lock manager, and sync pipeline using the factory
	sched, lockManager, err := buildSchedulerComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler components: %w", err)
	}

	// Build HTTP server
	httpServer, err := buildHTTPServer(ctx, cfg, sched, lockManager)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	// Create application context
	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	cancelFunc := func() {
		if cfg.storageFactory != nil {
			cfg.storageFactory.Cleanup()
		}
		cancel()
	}

	return &SyncApp{
		config: cfg.config,
		components: &AppComponents{
			Scheduler:   sched,
			LockManager: lockManager,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		host := parts[0]
		port := parts[1]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// buildSchedulerComponents builds the job scheduler, lock manager, and sync pipeline
func buildSchedulerComponents(
	ctx context.Context,
	b *syncAppConfig,
) (scheduler.Scheduler, *locks.Manager, error) {
	slog.Info("Initializing scheduler components")

	if b.config == nil {
		return nil, nil, fmt.Errorf("config cannot be nil")
	}

	// Create storage-dependent components using the factory
	jobStore, err := b.storageFactory.CreateJobStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create job store: %w", err)
	}

	directory, err := b.storageFactory.CreateDirectory(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lockStore, err := b.storageFactory.CreateLockStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lock store: %w", err)
	}

	// Build lock manager with metrics when a meter provider is configured
	var lockOpts []locks.ManagerOption
	if b.meterProvider != nil {
		lockMetrics, err := telemetry.NewLockMetrics(b.meterProvider)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create lock metrics: %w", err)
		}
		if lockMetrics != nil {
			lockOpts = append(lockOpts, locks.WithMetrics(lockMetrics))
			slog.Info("Lock metrics enabled")
		}
	}
	lockManager := locks.NewManager(lockStore, lockOpts...)

	// Build sync manager (unless injected)
	if b.syncManager == nil {
		b.syncManager, err = buildSyncManager(b, directory)
		if err != nil {
			return nil, nil, err
		}
	}

	schedOpts, err := schedulerOptions(b)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(jobStore, directory, lockManager, b.syncManager, schedOpts...)
	slog.Info("Scheduler components initialized successfully")

	return sched, lockManager, nil
}

// buildSyncManager assembles the sync pipeline over the commerce platform
// client and the index sink, each behind its own guard.
func buildSyncManager(b *syncAppConfig, directory stores.Directory) (pkgsync.Manager, error) {
	var clientOpts []commerce.ClientOption
	if t := b.config.Commerce.GetTimeout(); t > 0 {
		clientOpts = append(clientOpts, commerce.WithTimeout(t))
	}
	source := commerce.NewHTTPClient(b.config.Commerce.BaseURL, clientOpts...)

	var sinkOpts []index.SinkOption
	if t := b.config.Index.GetTimeout(); t > 0 {
		sinkOpts = append(sinkOpts, index.WithTimeout(t))
	}
	sink := index.NewHTTPSink(b.config.Index.BaseURL, sinkOpts...)

	// Record breaker state transitions when a meter provider is configured
	var breakerOpts []resilience.BreakerOption
	if b.meterProvider != nil {
		breakerMetrics, err := telemetry.NewBreakerMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create breaker metrics: %w", err)
		}
		if breakerMetrics != nil {
			breakerOpts = append(breakerOpts, resilience.WithBreakerNotify(
				func(name string, from, to resilience.State) {
					breakerMetrics.RecordTransition(context.Background(), name, string(from), string(to))
				}))
			slog.Info("Breaker metrics enabled")
		}
	}

	managerOpts := []pkgsync.Option{
		pkgsync.WithSourceGuard(buildGuard("commerce", b.config.Resilience.Commerce, breakerOpts)),
		pkgsync.WithIndexGuard(buildGuard("index", b.config.Resilience.Index, breakerOpts)),
	}
	if t := b.config.Commerce.GetFetchTimeout(); t > 0 {
		managerOpts = append(managerOpts, pkgsync.WithFetchTimeout(t))
	}
	if size := b.config.Index.BatchSize; size > 0 {
		managerOpts = append(managerOpts, pkgsync.WithIndexBatchSize(size))
	}

	return pkgsync.NewDefaultSyncManager(directory, source, sink, managerOpts...), nil
}

// buildGuard layers the configured policy for one dependency over the defaults.
func buildGuard(name string, policy *config.PolicyConfig, breakerOpts []resilience.BreakerOption) *resilience.Guard {
	breakerCfg := resilience.DefaultBreakerConfig()
	retryPolicy := resilience.DefaultRetryPolicy()

	if policy != nil {
		if policy.FailureThreshold > 0 {
			breakerCfg.FailureThreshold = policy.FailureThreshold
		}
		if t := policy.GetResetTimeout(); t > 0 {
			breakerCfg.ResetTimeout = t
		}
		if policy.MaxAttempts > 0 {
			retryPolicy.MaxAttempts = policy.MaxAttempts
		}
		if d := policy.GetBaseDelay(); d > 0 {
			retryPolicy.BaseDelay = d
		}
		if d := policy.GetMaxDelay(); d > 0 {
			retryPolicy.MaxDelay = d
		}
	}

	return resilience.NewGuard(resilience.NewBreaker(name, breakerCfg, breakerOpts...), retryPolicy, slog.Default())
}

// schedulerOptions maps scheduling configuration onto scheduler options.
// Unset values are left to the scheduler's defaults.
func schedulerOptions(b *syncAppConfig) ([]scheduler.Option, error) {
	var opts []scheduler.Option

	schedCfg := b.config.Scheduler
	if t := schedCfg.GetTickInterval(); t > 0 {
		opts = append(opts, scheduler.WithTickInterval(t))
	}
	if schedCfg.BatchSize > 0 {
		opts = append(opts, scheduler.WithBatchSize(schedCfg.BatchSize))
	}
	if d := schedCfg.GetBatchDelay(); d > 0 {
		opts = append(opts, scheduler.WithBatchDelay(d))
	}
	if schedCfg.MaxRetries > 0 {
		opts = append(opts, scheduler.WithMaxRetries(schedCfg.MaxRetries))
	}
	if d := schedCfg.GetRetryBackoffBase(); d > 0 {
		opts = append(opts, scheduler.WithRetryBackoffBase(d))
	}
	if high, medium, low := schedCfg.GetIntervals(); high > 0 || medium > 0 || low > 0 {
		opts = append(opts, scheduler.WithSyncIntervals(high, medium, low))
	}

	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			opts = append(opts, scheduler.WithSyncMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}

	return opts, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	_ context.Context,
	b *syncAppConfig,
	sched scheduler.Scheduler,
	lockManager *locks.Manager,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Add metrics middleware if meter provider is configured
	// This should be added early in the chain to capture all requests
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			// Prepend so every request is measured, including rejected ones
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	// Create router with middlewares
	router := api.NewServer(sched, lockManager, api.WithMiddlewares(b.middlewares...))

	// Create HTTP server
	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
