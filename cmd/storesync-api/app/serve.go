package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	syncapp "github.com/merchantiq/storesync/internal/app"
	"github.com/merchantiq/storesync/internal/config"
	"github.com/merchantiq/storesync/internal/telemetry"
	"github.com/merchantiq/storesync/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync scheduler and API server",
	Long: `Start the sync scheduler and its management API.

The server requires a configuration file (--config) that specifies:
- The storage backend (memory or postgres) and an optional Redis lock store
- Commerce platform and search index endpoints
- Scheduler cadence, batching and retry settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

// defaultGracefulTimeout bounds shutdown; Kubernetes sends SIGKILL after 30s.
const defaultGracefulTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides the config file)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		panic(err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"service", cfg.GetServiceName(),
		"backend", cfg.Storage.GetBackend(),
	)

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(telemetryConfig(cfg)))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	opts := []syncapp.SyncAppOptions{syncapp.WithConfig(cfg)}

	if address := viper.GetString("address"); address != "" {
		opts = append(opts, syncapp.WithAddress(address))
	} else {
		opts = append(opts, syncapp.WithAddress(cfg.Server.GetAddress()))
	}

	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		opts = append(opts, syncapp.WithMeterProvider(tel.MeterProvider()))
	}

	application, err := syncapp.NewSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	// Wait for an interrupt or for the server to fail on its own.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	if err := application.Stop(defaultGracefulTimeout); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return <-errCh
}

// telemetryConfig maps the service configuration onto the telemetry package's
// config type. Returns nil when telemetry is not configured, which yields a
// no-op provider.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	if cfg.Telemetry == nil {
		return nil
	}
	return &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.GetServiceName(),
		ServiceVersion: versions.GetVersionInfo().Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Metrics:        &telemetry.MetricsConfig{Enabled: cfg.Telemetry.Enabled},
	}
}
