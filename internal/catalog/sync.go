// Package catalog reconciles the endpoints the loader discovers with the durable
// catalog records. A pass creates missing records, refreshes descriptive fields of
// existing ones and tombstones synced records that are no longer discovered.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/loader"
	"github.com/stacklok/toolhive-gateway/internal/otel"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/internal/telemetry"
)

// DefaultStoreTimeout bounds every store call of a pass
const DefaultStoreTimeout = 5 * time.Second

// ErrSyncInProgress is returned when a sync is requested while another one runs
var ErrSyncInProgress = errors.New("sync already in progress")

// Record results reported to metrics
const (
	resultCreated     = "created"
	resultUpdated     = "updated"
	resultReactivated = "reactivated"
	resultDeactivated = "deactivated"
	resultSkipped     = "skipped"
)

// Stats are the aggregate counts of one pass
type Stats struct {
	Discovered     int `json:"totalDiscovered"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Reactivated    int `json:"reactivated"`
	Deactivated    int `json:"deactivated"`
	Skipped        int `json:"skippedRecords"`
	ModuleFailures int `json:"moduleFailures"`
}

// Result is the outcome of a sync request
type Result struct {
	Success     bool       `json:"success"`
	Skipped     bool       `json:"skipped,omitempty"`
	Stats       *Stats     `json:"stats,omitempty"`
	DurationMs  int64      `json:"duration,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Status reports whether a pass is running and how the last one ended
type Status struct {
	SyncInProgress bool    `json:"syncInProgress"`
	LastResult     *Result `json:"lastResult,omitempty"`
}

// Discoverer produces the current truth set
type Discoverer interface {
	Load(ctx context.Context) (*loader.Candidate, error)
}

// Syncer runs catalog sync passes
type Syncer struct {
	discoverer   Discoverer
	store        store.CatalogStore
	clock        clock.PassiveClock
	storeTimeout time.Duration
	publisher    events.Publisher
	metrics      *telemetry.SyncMetrics
	tracer       trace.Tracer

	inProgress atomic.Bool

	mu   sync.RWMutex
	last *Result
}

// Option configures a Syncer
type Option func(*Syncer)

// WithClock injects the clock used for sync timestamps
func WithClock(c clock.PassiveClock) Option {
	return func(s *Syncer) { s.clock = c }
}

// WithStoreTimeout bounds each store call
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithPublisher sets where sync_complete events are published
func WithPublisher(p events.Publisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithMetrics records sync metrics
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithTracer records a span per pass
func WithTracer(t trace.Tracer) Option {
	return func(s *Syncer) { s.tracer = t }
}

// NewSyncer creates a Syncer reading from discoverer and writing to catalogStore
func NewSyncer(discoverer Discoverer, catalogStore store.CatalogStore, opts ...Option) *Syncer {
	s := &Syncer{
		discoverer:   discoverer,
		store:        catalogStore,
		clock:        clock.RealClock{},
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one pass. A call made while another pass runs returns immediately
// with Skipped set and ErrSyncInProgress. Per-record store failures are counted
// as skipped and never abort the pass.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "catalog.Sync")
	defer span.End()

	if !s.inProgress.CompareAndSwap(false, true) {
		span.SetAttributes(otel.AttrSkipped.Bool(true))
		slog.InfoContext(ctx, "Catalog sync skipped, another sync is in progress")
		return &Result{Skipped: true}, ErrSyncInProgress
	}
	defer s.inProgress.Store(false)

	start := s.clock.Now()
	stats, err := s.run(ctx, start)
	duration := s.clock.Since(start)
	completed := s.clock.Now()

	result := &Result{
		Success:     err == nil,
		Stats:       stats,
		DurationMs:  duration.Milliseconds(),
		CompletedAt: &completed,
	}
	s.metrics.RecordSyncDuration(ctx, duration, err == nil)

	if err != nil {
		otel.RecordError(span, err)
		result.Error = err.Error()
		s.setLast(result)
		slog.ErrorContext(ctx, "Catalog sync failed", "error", err, "duration", duration)
		return result, err
	}

	s.setLast(result)
	span.SetAttributes(
		otel.AttrSyncCreated.Int(stats.Created),
		otel.AttrSyncUpdated.Int(stats.Updated),
		otel.AttrSyncDeactivated.Int(stats.Deactivated),
	)
	slog.InfoContext(ctx, "Catalog sync completed",
		"discovered", stats.Discovered,
		"created", stats.Created,
		"updated", stats.Updated,
		"reactivated", stats.Reactivated,
		"deactivated", stats.Deactivated,
		"skipped", stats.Skipped,
		"duration", duration)
	if s.publisher != nil {
		s.publisher.Publish(events.EndpointSyncComplete(*stats))
	}
	return result, nil
}

func (s *Syncer) run(ctx context.Context, syncedAt time.Time) (*Stats, error) {
	candidate, err := s.discoverer.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover endpoints: %w", err)
	}

	stats := &Stats{ModuleFailures: len(candidate.Failures)}
	truth := make(map[endpoint.Key]struct{})

	for _, d := range candidate.Descriptors {
		keys := d.Keys()
		if err := validateDescriptor(d); err != nil {
			slog.WarnContext(ctx, "Skipping invalid endpoint descriptor",
				"path", d.Path, "source", d.Source, "error", err)
			stats.Skipped += len(keys)
			continue
		}

		category := d.Category
		if category == "" {
			category = endpoint.Classify(d.Path, d.Name, d.Description)
		}

		for _, key := range keys {
			if _, seen := truth[key]; seen {
				continue
			}
			truth[key] = struct{}{}
			stats.Discovered++

			out, err := s.upsert(ctx, store.DiscoveredEndpoint{
				Path:           key.Path,
				Method:         key.Method,
				Name:           d.Name,
				Description:    d.Description,
				Category:       category,
				Parameters:     d.Parameters,
				Examples:       d.Examples,
				ResponseBinary: d.ResponseBinary,
				Source:         d.Source,
			}, syncedAt)
			switch {
			case err != nil:
				slog.WarnContext(ctx, "Failed to sync endpoint record", "endpoint", key.String(), "error", err)
				stats.Skipped++
			case out.Created:
				stats.Created++
			case out.Reactivated:
				stats.Reactivated++
			default:
				stats.Updated++
			}
		}
	}

	if err := s.deactivateMissing(ctx, truth, syncedAt, stats); err != nil {
		s.recordStats(ctx, stats)
		return stats, err
	}
	s.recordStats(ctx, stats)
	return stats, nil
}

// deactivateMissing tombstones synced active records absent from truth
func (s *Syncer) deactivateMissing(
	ctx context.Context, truth map[endpoint.Key]struct{}, at time.Time, stats *Stats,
) error {
	listCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	active, err := s.store.ListSyncedActiveKeys(listCtx)
	if err != nil {
		return fmt.Errorf("failed to list synced endpoints: %w", err)
	}

	var missing []endpoint.Key
	for _, key := range active {
		if _, ok := truth[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	tombCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	n, err := s.store.Tombstone(tombCtx, missing, at)
	if err != nil {
		slog.WarnContext(ctx, "Failed to deactivate missing endpoints", "count", len(missing), "error", err)
		stats.Skipped += len(missing)
		return nil
	}
	stats.Deactivated += n
	slog.InfoContext(ctx, "Deactivated endpoints no longer discovered", "endpoints", keysString(missing))
	return nil
}

func (s *Syncer) upsert(ctx context.Context, d store.DiscoveredEndpoint, syncedAt time.Time) (store.UpsertOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.UpsertDiscovered(ctx, d, syncedAt)
}

func (s *Syncer) recordStats(ctx context.Context, stats *Stats) {
	s.metrics.RecordSyncRecords(ctx, resultCreated, stats.Created)
	s.metrics.RecordSyncRecords(ctx, resultUpdated, stats.Updated)
	s.metrics.RecordSyncRecords(ctx, resultReactivated, stats.Reactivated)
	s.metrics.RecordSyncRecords(ctx, resultDeactivated, stats.Deactivated)
	s.metrics.RecordSyncRecords(ctx, resultSkipped, stats.Skipped)
}

// Status returns a snapshot of the sync state
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{SyncInProgress: s.inProgress.Load()}
	if s.last != nil {
		last := *s.last
		if last.Stats != nil {
			stats := *last.Stats
			last.Stats = &stats
		}
		st.LastResult = &last
	}
	return st
}

// Stats summarizes the durable catalog
func (s *Syncer) Stats(ctx context.Context) (*store.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute catalog stats: %w", err)
	}
	return stats, nil
}

func (s *Syncer) setLast(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
}

func validateDescriptor(d endpoint.Descriptor) error {
	if d.Path == "" {
		return errors.New("path is required")
	}
	if !strings.HasPrefix(d.Path, "/") {
		return fmt.Errorf("path %q must begin with /", d.Path)
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

func keysString(keys []endpoint.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
