// Package app provides application lifecycle management for the gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-gateway/internal/config"
	"github.com/stacklok/toolhive-gateway/internal/reload"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

// defaultShutdownTimeout bounds server draining after a component failure and
// flushing of traces and metrics on Stop
const defaultShutdownTimeout = 5 * time.Second

// GatewayApp encapsulates all components needed to run the gateway.
// It provides lifecycle management and graceful shutdown capabilities.
type GatewayApp struct {
	config     *config.Config
	components *GatewayComponents
	telemetry  *telemetry.Telemetry
	httpServer *http.Server

	listenerMu sync.Mutex
	listener   net.Listener
	listening  chan struct{}

	stopOnce sync.Once
	stopErr  error

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start loads the first endpoint generation, optionally syncs the catalog, and
// then serves HTTP while watching module manifests. It blocks until Stop is
// called or a component fails.
func (app *GatewayApp) Start() error {
	app.initialize(app.ctx)

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.setListener(ln)

	g, ctx := errgroup.WithContext(app.ctx)

	if app.components.watchDir != "" {
		trigger := newTrigger(ctx, app.config, app.components)
		defer trigger.Stop()
		watcher := reload.NewWatcher(app.components.watchDir, trigger)
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", ln.Addr().String())
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// A failing component stops the server too.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		_ = app.httpServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// initialize publishes the first generation. A failed first load leaves the
// gateway without a generation; dynamic requests and readiness answer 503
// until a later reload succeeds.
func (app *GatewayApp) initialize(ctx context.Context) {
	res, err := app.components.Registry.Reload(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Initial endpoint load failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Initial endpoint generation published",
		"generation", res.Generation, "endpoints", res.TotalEndpoints, "module_failures", len(res.Failures))

	if app.config.Catalog.SyncOnStartup {
		app.components.sync(ctx, "startup")
	}
}

func (app *GatewayApp) setListener(ln net.Listener) {
	app.listenerMu.Lock()
	defer app.listenerMu.Unlock()
	app.listener = ln
	close(app.listening)
}

// Listening is closed once the HTTP listener is bound
func (app *GatewayApp) Listening() <-chan struct{} {
	return app.listening
}

// Addr returns the bound listener address, or the configured address before Start binds it
func (app *GatewayApp) Addr() string {
	app.listenerMu.Lock()
	defer app.listenerMu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Stop gracefully stops the application with the given timeout. In-flight
// requests are drained, then the notifier, authenticator, store and telemetry
// are released. Calling Stop more than once returns the first result.
func (app *GatewayApp) Stop(timeout time.Duration) error {
	app.stopOnce.Do(func() {
		slog.Info("Shutting down gateway...")

		if app.cancelFunc != nil {
			app.cancelFunc()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// Streaming subscribers end when the hub closes; do it first so Shutdown can drain.
		app.components.Hub.Close()

		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			app.stopErr = fmt.Errorf("server forced to shutdown: %w", err)
		}

		app.components.close()

		telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer telemetryCancel()
		if err := app.telemetry.Shutdown(telemetryCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}

		slog.Info("Gateway shutdown complete")
	})
	return app.stopErr
}

// GetConfig returns the application configuration
func (app *GatewayApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *GatewayApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired gateway components
func (app *GatewayApp) Components() *GatewayComponents {
	return app.components
}
