// Package app provides application lifecycle management for the sync service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/merchantiq/storesync/internal/config"
)

// drainTimeout bounds the HTTP drain when group-context cancellation,
// rather than Stop, ends the run. Stop drains with the caller's timeout.
const drainTimeout = 10 * time.Second

// SyncApp encapsulates all components needed to run the store sync service
// It provides lifecycle management and graceful shutdown capabilities
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the application components (HTTP server and background scheduler)
// This method blocks until both have stopped and returns the first failure.
// A failure in either component tears the other down.
func (app *SyncApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// ListenAndServe does not watch contexts. Drain the server once the
	// group context ends, whether from Stop or from a failed sibling.
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return app.httpServer.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout
// It stops the scheduler, drains the HTTP server, and releases storage
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	// Stop the scheduler first so no new sync runs start.
	// Stop waits for in-flight runs to finish.
	if err := app.components.Scheduler.Stop(); err != nil {
		slog.Error("Failed to stop scheduler", "error", err)
	}

	// Graceful HTTP server shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := app.httpServer.Shutdown(shutdownCtx)

	// Storage is released last; handlers may still touch it while the
	// server drains.
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
