// Package registry owns the published generation of the endpoint dispatch table.
// A reload assembles a complete generation off to the side and publishes it with
// a single atomic swap; readers never see a partially built generation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/api/common"
	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/loader"
	"github.com/stacklok/toolhive-gateway/internal/otel"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

// DefaultReloadTimeout bounds a single reload attempt
const DefaultReloadTimeout = 30 * time.Second

// ErrReloadInProgress is returned when a reload is requested while another one runs
var ErrReloadInProgress = errors.New("reload already in progress")

// Generation is one immutable, published version of the dispatch table
type Generation struct {
	Number      uint64
	PublishedAt time.Time
	Handler     http.Handler
	Descriptors []endpoint.Descriptor
	Routes      int
}

// Result is the outcome of a reload request
type Result struct {
	Success        bool                      `json:"success"`
	Skipped        bool                      `json:"skipped,omitempty"`
	Generation     uint64                    `json:"generation,omitempty"`
	DurationMs     int64                     `json:"duration,omitempty"`
	TotalEndpoints int                       `json:"totalEndpoints,omitempty"`
	Failures       []*loader.ModuleLoadError `json:"failures,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

// Discoverer produces candidates for a new generation
type Discoverer interface {
	Load(ctx context.Context) (*loader.Candidate, error)
}

// Registry publishes generations and reports reload status
type Registry struct {
	discoverer Discoverer
	clock      clock.PassiveClock
	timeout    time.Duration
	publisher  events.Publisher
	metrics    *telemetry.RegistryMetrics
	tracer     trace.Tracer

	active   atomic.Pointer[Generation]
	inFlight atomic.Bool

	statusMu sync.RWMutex
	status   Status
}

// Option configures a Registry
type Option func(*Registry)

// WithClock injects the clock used for timestamps and durations
func WithClock(c clock.PassiveClock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithTimeout bounds each reload attempt
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPublisher sets where reload events are published
func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithMetrics records reload metrics
func WithMetrics(m *telemetry.RegistryMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer records a span per reload
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// New creates an Idle registry with no published generation
func New(discoverer Discoverer, opts ...Option) *Registry {
	r := &Registry{
		discoverer: discoverer,
		clock:      clock.RealClock{},
		timeout:    DefaultReloadTimeout,
		status:     Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload discovers modules and publishes a new generation. A call made while
// another reload runs returns immediately with Skipped set and ErrReloadInProgress.
// A discovery pass that outlives the timeout still counts as running until it
// returns. On failure the previous generation keeps serving.
func (r *Registry) Reload(ctx context.Context) (*Result, error) {
	ctx, span := otel.StartSpan(ctx, r.tracer, "registry.Reload")
	defer span.End()

	if !r.inFlight.CompareAndSwap(false, true) {
		span.SetAttributes(otel.AttrSkipped.Bool(true))
		slog.InfoContext(ctx, "Reload skipped, another reload is in progress")
		r.metrics.RecordReload(ctx, 0, telemetry.OutcomeSkipped)
		return &Result{Skipped: true}, ErrReloadInProgress
	}
	release := func() { r.inFlight.Store(false) }
	defer func() { release() }()

	start := r.clock.Now()
	r.updateStatus(func(s *Status) {
		s.State = StateReloading
		s.TotalReloads++
	})

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	candidate, pending, err := r.discover(ctx)
	if pending != nil {
		// an abandoned discovery pass keeps the guard until it returns
		release = func() {
			go func() {
				<-pending
				slog.Info("Abandoned module discovery finished, reloads accepted again")
				r.inFlight.Store(false)
			}()
		}
	}
	var gen *Generation
	if err == nil {
		gen, err = r.build(candidate, start)
	}
	duration := r.clock.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "Reload failed, previous generation keeps serving",
			"error", err, "duration", duration)
		r.updateStatus(func(s *Status) {
			s.State = StateFailed
			s.LastReloadAt = timePtr(start)
			s.LastError = err.Error()
			s.Failures++
			s.LastDurationMs = duration.Milliseconds()
		})
		r.metrics.RecordReload(ctx, duration, telemetry.OutcomeFailure)
		otel.RecordError(span, err)
		return &Result{Success: false, DurationMs: duration.Milliseconds(), Error: err.Error()}, err
	}

	r.active.Store(gen)
	span.SetAttributes(
		otel.AttrGeneration.Int64(int64(gen.Number)), //nolint:gosec // generation numbers stay far below MaxInt64
		otel.AttrEndpointCount.Int(gen.Routes),
		otel.AttrModuleFailures.Int(len(candidate.Failures)),
	)
	r.updateStatus(func(s *Status) {
		s.State = StateReady
		s.Generation = gen.Number
		s.LastReloadAt = timePtr(start)
		s.LastError = ""
		s.Successes++
		s.LastDurationMs = duration.Milliseconds()
		s.Endpoints = gen.Routes
		s.ModuleFailures = len(candidate.Failures)
	})

	slog.InfoContext(ctx, "Published endpoint generation",
		"generation", gen.Number,
		"routes", gen.Routes,
		"descriptors", len(gen.Descriptors),
		"module_failures", len(candidate.Failures),
		"duration", duration)
	r.metrics.RecordReload(ctx, duration, telemetry.OutcomeSuccess)
	r.metrics.RecordGeneration(ctx, gen.Number, gen.Routes)
	if r.publisher != nil {
		r.publisher.Publish(events.EndpointBulkChange(events.ActionReloaded, gen.Routes))
	}

	return &Result{
		Success:        true,
		Generation:     gen.Number,
		DurationMs:     duration.Milliseconds(),
		TotalEndpoints: gen.Routes,
		Failures:       candidate.Failures,
	}, nil
}

type discovery struct {
	candidate *loader.Candidate
	err       error
}

// discover runs the loader but gives up when ctx expires, even if a module ignores
// ctx. After giving up it returns the channel the abandoned pass will report on.
func (r *Registry) discover(ctx context.Context) (*loader.Candidate, <-chan discovery, error) {
	done := make(chan discovery, 1)
	go func() {
		c, err := r.discoverer.Load(ctx)
		done <- discovery{c, err}
	}()

	select {
	case d := <-done:
		return d.candidate, nil, d.err
	case <-ctx.Done():
		return nil, done, fmt.Errorf("module discovery did not finish: %w", ctx.Err())
	}
}

// build assembles a generation from a candidate. Router construction panics are
// converted into errors.
func (r *Registry) build(candidate *loader.Candidate, publishedAt time.Time) (gen *Generation, err error) {
	defer func() {
		if p := recover(); p != nil {
			gen, err = nil, fmt.Errorf("failed to build dispatch table: %v", p)
		}
	}()

	router := chi.NewRouter()
	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.WriteErrorResponse(w, "endpoint not found", http.StatusNotFound)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.WriteErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	for _, route := range candidate.Routes {
		if route.Method == endpoint.MethodAll {
			router.Handle(route.Path, route.Handler)
			continue
		}
		router.Method(route.Method, route.Path, route.Handler)
	}

	var number uint64 = 1
	if prev := r.active.Load(); prev != nil {
		number = prev.Number + 1
	}

	return &Generation{
		Number:      number,
		PublishedAt: publishedAt,
		Handler:     router,
		Descriptors: slices.Clone(candidate.Descriptors),
		Routes:      len(candidate.Routes),
	}, nil
}

// Active returns the published generation, or nil before the first successful reload
func (r *Registry) Active() *Generation {
	return r.active.Load()
}

// Endpoints returns a copy of the published descriptors
func (r *Registry) Endpoints() []endpoint.Descriptor {
	gen := r.active.Load()
	if gen == nil {
		return nil
	}
	return slices.Clone(gen.Descriptors)
}

// Status returns a snapshot of the reload status
func (r *Registry) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status.clone()
}

// ServeHTTP dispatches through the published generation
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	gen := r.active.Load()
	if gen == nil {
		common.WriteErrorResponse(w, "no endpoint generation published yet", http.StatusServiceUnavailable)
		return
	}
	// Drop any routing context of an enclosing chi router so the generation
	// routes on the full request path.
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, nil))
	gen.Handler.ServeHTTP(w, req)
}

func (r *Registry) updateStatus(fn func(*Status)) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	next := r.status.clone()
	fn(&next)
	r.status = next
}

func timePtr(t time.Time) *time.Time {
	return &t
}
