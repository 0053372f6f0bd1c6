// Package access decides, per request, whether the caller may reach a protected
// endpoint. Protection metadata is read from the catalog store into a TTL-bounded
// snapshot; decisions may therefore lag store changes by up to one TTL unless the
// snapshot is invalidated.
package access

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

// Defaults for the protected-endpoint snapshot
const (
	DefaultTTL          = 60 * time.Second
	DefaultStoreTimeout = 5 * time.Second
)

// ProtectedSource lists the endpoints that need enforcement
type ProtectedSource interface {
	ListProtected(ctx context.Context) ([]store.ProtectedEndpoint, error)
}

// Entry is one fetched snapshot of protected endpoints
type Entry struct {
	Endpoints []store.ProtectedEndpoint
	FetchedAt time.Time
}

// Cache holds the current snapshot. Reads never block; two concurrent misses may
// both refetch and the last write wins.
type Cache struct {
	source       ProtectedSource
	clock        clock.PassiveClock
	ttl          time.Duration
	storeTimeout time.Duration
	metrics      *telemetry.AccessMetrics

	entry atomic.Pointer[Entry]
}

// Option configures a Cache
type Option func(*Cache)

// WithClock injects the clock used for snapshot age
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Cache) { c.clock = clk }
}

// WithTTL sets the maximum snapshot age
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithStoreTimeout bounds each refetch
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithMetrics records decision and refresh metrics
func WithMetrics(m *telemetry.AccessMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates an empty cache over source
func NewCache(source ProtectedSource, opts ...Option) *Cache {
	c := &Cache{
		source:       source,
		clock:        clock.RealClock{},
		ttl:          DefaultTTL,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Protected returns the protected endpoints, refetching when the snapshot is
// missing or older than the TTL. When the refetch fails a stale snapshot keeps
// serving for another TTL. With no snapshot at all nothing is treated as protected and the
// failure is not cached, so enforcement is open until the store answers again.
func (c *Cache) Protected(ctx context.Context) []store.ProtectedEndpoint {
	endpoints, _ := c.Lookup(ctx)
	return endpoints
}

// Lookup is Protected, additionally reporting false when no snapshot could be
// loaded and the result is the fail-open empty list.
func (c *Cache) Lookup(ctx context.Context) ([]store.ProtectedEndpoint, bool) {
	entry := c.entry.Load()
	if entry != nil && c.clock.Since(entry.FetchedAt) <= c.ttl {
		return entry.Endpoints, true
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	endpoints, err := c.source.ListProtected(fetchCtx)
	if err != nil {
		if entry != nil {
			slog.WarnContext(ctx, "Failed to refresh protected endpoints, serving stale snapshot",
				"error", err, "age", c.clock.Since(entry.FetchedAt))
			c.metrics.RecordRefresh(ctx, telemetry.RefreshStale)
			// the stale snapshot is held for another TTL before the next retry
			c.entry.CompareAndSwap(entry, &Entry{Endpoints: entry.Endpoints, FetchedAt: c.clock.Now()})
			return entry.Endpoints, true
		}
		slog.ErrorContext(ctx, "Failed to load protected endpoints, access enforcement is open until the store recovers",
			"error", err)
		c.metrics.RecordRefresh(ctx, telemetry.RefreshFailOpen)
		return nil, false
	}

	c.entry.Store(&Entry{Endpoints: endpoints, FetchedAt: c.clock.Now()})
	c.metrics.RecordRefresh(ctx, telemetry.RefreshFetched)
	return endpoints, true
}

// Snapshot returns the current entry without refreshing it
func (c *Cache) Snapshot() *Entry {
	return c.entry.Load()
}

// Invalidate drops the snapshot; the next lookup refetches
func (c *Cache) Invalidate() {
	c.entry.Store(nil)
	slog.Info("Access cache invalidated")
}

// Match returns the protected endpoint matching path and method
func (c *Cache) Match(ctx context.Context, path, method string) (store.ProtectedEndpoint, bool) {
	return Match(c.Protected(ctx), path, method)
}

// Match returns the endpoint whose path covers path and whose method set admits
// method. A descriptor path covers a request path when they are equal or the
// request continues it with "/" or "?". The longest covering path wins.
func Match(endpoints []store.ProtectedEndpoint, path, method string) (store.ProtectedEndpoint, bool) {
	var best store.ProtectedEndpoint
	found := false
	for _, ep := range endpoints {
		if !PathMatches(ep.Path, path) || !endpoint.MethodMatches(ep.Method, method) {
			continue
		}
		if !found || len(ep.Path) > len(best.Path) {
			best, found = ep, true
		}
	}
	return best, found
}

// PathMatches reports whether requestPath equals protectedPath or extends it at a boundary
func PathMatches(protectedPath, requestPath string) bool {
	if protectedPath == "" {
		return false
	}
	if requestPath == protectedPath {
		return true
	}
	if !strings.HasPrefix(requestPath, protectedPath) {
		return false
	}
	next := requestPath[len(protectedPath)]
	return next == '/' || next == '?'
}
