package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/access"
	"github.com/stacklok/toolhive-gateway/internal/api/admin"
	"github.com/stacklok/toolhive-gateway/internal/auth"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/internal/store"
)

// DefaultAdminRateLimit is the number of admin requests allowed per client IP and minute
const DefaultAdminRateLimit = 60

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the components the HTTP surface is built from
type Dependencies struct {
	Registry      *registry.Registry
	Syncer        admin.Syncer
	Store         store.Store
	Access        *access.Cache
	Authenticator *auth.Authenticator
	Hub           *events.Hub
	Heartbeat     time.Duration
	StoreTimeout  time.Duration
}

// ServerOption configures the gateway HTTP server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
	readiness      []ReadinessCheck
	adminRateLimit int
	clock          clock.PassiveClock
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h at GET /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithReadinessChecks adds checks that must pass for GET /readiness to succeed
func WithReadinessChecks(checks ...ReadinessCheck) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = append(cfg.readiness, checks...)
	}
}

// WithAdminRateLimit sets the admin requests allowed per client IP and minute
func WithAdminRateLimit(n int) ServerOption {
	return func(cfg *serverConfig) {
		if n > 0 {
			cfg.adminRateLimit = n
		}
	}
}

// WithClock injects the clock used for uptime and entitlement checks
func WithClock(c clock.PassiveClock) ServerOption {
	return func(cfg *serverConfig) {
		cfg.clock = c
	}
}

// NewServer creates the gateway router. Gateway routes take precedence; every
// other request passes the access check and is dispatched to the published
// endpoint generation.
func NewServer(deps Dependencies, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		adminRateLimit: DefaultAdminRateLimit,
		clock:          clock.RealClock{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}
	r.Use(deps.Authenticator.Middleware)

	routes := &publicRoutes{
		registry:  deps.Registry,
		access:    deps.Access,
		readiness: cfg.readiness,
		clock:     cfg.clock,
		startedAt: cfg.clock.Now(),
	}
	r.Get("/health", routes.health)
	r.Get("/readiness", routes.ready)
	r.Get("/version", versionHandler)
	r.Get("/catalog", routes.catalog)
	r.Get("/catalog/docs", routes.docs)
	r.Get("/auth/me", whoAmI)

	r.Handle("/events", events.StreamHandler(deps.Hub, deps.Heartbeat))
	r.Handle("/events/ws", events.WebSocketHandler(deps.Hub, deps.Heartbeat))

	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	r.With(
		deps.Authenticator.RequireRole(store.RoleAdmin),
		httprate.LimitByIP(cfg.adminRateLimit, time.Minute),
	).Mount("/admin", admin.Router(admin.Dependencies{
		Reloader:     deps.Registry,
		Syncer:       deps.Syncer,
		Catalog:      deps.Store,
		Users:        deps.Store,
		Access:       deps.Access,
		Principals:   deps.Authenticator,
		Publisher:    deps.Hub,
		StoreTimeout: deps.StoreTimeout,
	}))

	r.Handle("/*", access.Middleware(deps.Access)(deps.Registry))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
