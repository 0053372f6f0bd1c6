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

	"github.com/stacklok/toolhive-gateway/database"
	"github.com/stacklok/toolhive-gateway/internal/access"
	"github.com/stacklok/toolhive-gateway/internal/api"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/catalog"
	"github.com/stacklok/toolhive-gateway/internal/config"
	"github.com/stacklok/toolhive-gateway/internal/events"
	// registers the manifest handler kinds
	_ "github.com/stacklok/toolhive-gateway/internal/handlers"
	"github.com/stacklok/toolhive-gateway/internal/loader"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/internal/reload"
	"github.com/stacklok/toolhive-gateway/internal/store"
	dbstore "github.com/stacklok/toolhive-gateway/internal/store/database"
	"github.com/stacklok/toolhive-gateway/internal/store/inmemory"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

const (
	defaultHTTPAddress       = ":8080"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultReloadTimeout     = 30 * time.Second

	gatewayTracerName = "github.com/stacklok/toolhive-gateway"
)

// GatewayAppOptions is a function that configures the gateway app builder
type GatewayAppOptions func(*gatewayAppConfig) error

// gatewayAppConfig collects the options of NewGatewayApp. Component overrides
// are mostly used by tests; production builds everything from config.
type gatewayAppConfig struct {
	config *config.Config

	source    loader.Source
	store     store.Store
	telemetry *telemetry.Telemetry

	address           string
	middlewares       []func(http.Handler) http.Handler
	readHeaderTimeout time.Duration
	idleTimeout       time.Duration
}

func baseConfig(opts ...GatewayAppOptions) (*gatewayAppConfig, error) {
	cfg := &gatewayAppConfig{
		address:           defaultHTTPAddress,
		readHeaderTimeout: defaultReadHeaderTimeout,
		idleTimeout:       defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewGatewayApp builds every gateway component from the configuration. Nothing
// is loaded or served until Start is called.
func NewGatewayApp(ctx context.Context, opts ...GatewayAppOptions) (*GatewayApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, cfg.config.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	var readiness []api.ReadinessCheck
	if cfg.store == nil {
		var check api.ReadinessCheck
		cfg.store, check, err = buildStore(ctx, cfg)
		if err != nil {
			_ = cfg.telemetry.Shutdown(ctx)
			return nil, fmt.Errorf("failed to build store: %w", err)
		}
		if check != nil {
			readiness = append(readiness, check)
		}
	}

	components, err := buildComponents(cfg)
	if err != nil {
		cfg.store.Close()
		_ = cfg.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build gateway components: %w", err)
	}

	httpServer, err := buildHTTPServer(cfg, components, readiness)
	if err != nil {
		components.close()
		_ = cfg.telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	return &GatewayApp{
		config:     cfg.config,
		components: components,
		telemetry:  cfg.telemetry,
		httpServer: httpServer,
		listening:  make(chan struct{}),
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
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

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithModuleSource replaces the manifest directory as the source of endpoint modules
func WithModuleSource(s loader.Source) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		if s == nil {
			return fmt.Errorf("module source cannot be nil")
		}
		cfg.source = s
		return nil
	}
}

// WithStore injects the durable store instead of building one from config
func WithStore(s store.Store) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		if s == nil {
			return fmt.Errorf("store cannot be nil")
		}
		cfg.store = s
		return nil
	}
}

// WithTelemetry injects already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) GatewayAppOptions {
	return func(cfg *gatewayAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildStore selects the durable store. A configured database is connected,
// migrated and probed by readiness; otherwise the in-memory store is used.
func buildStore(ctx context.Context, b *gatewayAppConfig) (store.Store, api.ReadinessCheck, error) {
	dbCfg := b.config.Database
	if dbCfg == nil {
		slog.Warn("No database configured, catalog and users are kept in memory")
		return inmemory.New(), nil, nil
	}

	// Connect first: it retries until the database answers.
	pool, err := dbstore.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := dbstore.ConnectionString(ctx, dbCfg)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := database.MigrateUp(connStr); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s, err := dbstore.New(
		dbstore.WithConnectionPool(pool),
		dbstore.WithTracer(b.telemetry.TracerProvider().Tracer(dbstore.TracerName)),
	)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, s.Ping, nil
}

// buildComponents wires the registry, catalog sync, access cache, authenticator
// and change notifier around the store.
func buildComponents(b *gatewayAppConfig) (*GatewayComponents, error) {
	slog.Info("Initializing gateway components")
	c := b.config
	meterProvider := b.telemetry.MeterProvider()
	tracer := b.telemetry.TracerProvider().Tracer(gatewayTracerName)

	registryMetrics, err := telemetry.NewRegistryMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry metrics: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	accessMetrics, err := telemetry.NewAccessMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create access metrics: %w", err)
	}

	var authOpts []auth.Option
	if c.GetAuthMode() == config.AuthModeAnonymous {
		slog.Warn("Authentication is in anonymous mode, admin routes are unprotected")
		authOpts = append(authOpts, auth.WithAnonymousMode(true))
	} else {
		secret, err := c.Auth.GetJWTSecret()
		if err != nil {
			return nil, err
		}
		authOpts = append(authOpts, auth.WithSecret(secret))
	}
	authOpts = append(authOpts,
		auth.WithPrincipalTTL(c.GetPrincipalCacheTTL()),
		auth.WithLookupTimeout(c.GetStoreTimeout()),
	)

	source := b.source
	if source == nil {
		source = loader.NewDirectorySource(c.GetModulesPath(), c.Modules.Skip...)
	}
	ld := loader.New(source)

	hub := events.NewHub(events.WithMailboxSize(c.GetMailboxSize()))

	components := &GatewayComponents{
		Store: b.store,
		Registry: registry.New(ld,
			registry.WithTimeout(defaultReloadTimeout),
			registry.WithPublisher(hub),
			registry.WithMetrics(registryMetrics),
			registry.WithTracer(tracer),
		),
		Syncer: catalog.NewSyncer(ld, b.store,
			catalog.WithStoreTimeout(c.GetStoreTimeout()),
			catalog.WithPublisher(hub),
			catalog.WithMetrics(syncMetrics),
			catalog.WithTracer(tracer),
		),
		Access: access.NewCache(b.store,
			access.WithTTL(c.GetAccessCacheTTL()),
			access.WithStoreTimeout(c.GetStoreTimeout()),
			access.WithMetrics(accessMetrics),
		),
		Authenticator: auth.NewAuthenticator(b.store, authOpts...),
		Hub:           hub,
	}

	if c.Modules.Watch {
		dir, ok := source.(*loader.DirectorySource)
		if !ok {
			components.close()
			return nil, fmt.Errorf("modules.watch requires a manifest directory source, got %s", source.Name())
		}
		components.watchDir = dir.Dir()
	}

	slog.Info("Gateway components initialized",
		"modules", source.Name(), "watch", c.Modules.Watch, "auth_mode", c.GetAuthMode())
	return components, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(
	b *gatewayAppConfig,
	components *GatewayComponents,
	readiness []api.ReadinessCheck,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// No request timeout middleware: event streams hold their response open.
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	httpMetrics, err := telemetry.NewHTTPMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	// Outermost so that requests rejected by auth or the access check are recorded too.
	b.middlewares = append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithReadinessChecks(readiness...),
	}
	if h := b.telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}

	router := api.NewServer(api.Dependencies{
		Registry:      components.Registry,
		Syncer:        components.Syncer,
		Store:         components.Store,
		Access:        components.Access,
		Authenticator: components.Authenticator,
		Hub:           components.Hub,
		Heartbeat:     b.config.GetHeartbeat(),
		StoreTimeout:  b.config.GetStoreTimeout(),
	}, serverOpts...)

	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadHeaderTimeout: b.readHeaderTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// newTrigger builds the debounced reload trigger fed by the manifest watcher.
// When configured, every successful watched reload is followed by a catalog sync.
func newTrigger(ctx context.Context, c *config.Config, components *GatewayComponents) *reload.Trigger {
	opts := []reload.TriggerOption{reload.WithQuietWindow(c.GetDebounce())}
	if c.Catalog.SyncOnReload {
		opts = append(opts, reload.WithAfterReload(func(ctx context.Context, _ *registry.Result) {
			components.sync(ctx, "reload")
		}))
	}
	return reload.NewTrigger(ctx, components.Registry, opts...)
}
