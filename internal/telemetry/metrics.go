package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RegistryMetricsMeterName is the name used for the endpoint registry meter
	RegistryMetricsMeterName = "github.com/stacklok/toolhive-gateway/registry"

	// SyncMetricsMeterName is the name used for the catalog sync meter
	SyncMetricsMeterName = "github.com/stacklok/toolhive-gateway/catalog"

	// AccessMetricsMeterName is the name used for the access decision meter
	AccessMetricsMeterName = "github.com/stacklok/toolhive-gateway/access"
)

// Reload outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Access cache refresh outcomes
const (
	RefreshFetched  = "fetched"
	RefreshStale    = "stale"
	RefreshFailOpen = "fail_open"
)

// RegistryMetrics holds the OpenTelemetry instruments for endpoint registry reloads
type RegistryMetrics struct {
	reloadDuration metric.Float64Histogram
	endpointsTotal metric.Int64Gauge
	generation     metric.Int64Gauge
}

// NewRegistryMetrics creates a new RegistryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRegistryMetrics(provider metric.MeterProvider) (*RegistryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RegistryMetricsMeterName)

	reloadDuration, err := meter.Float64Histogram(
		"thv_gateway_reload_duration_seconds",
		metric.WithDescription("Duration of endpoint registry reloads in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	endpointsTotal, err := meter.Int64Gauge(
		"thv_gateway_endpoints_total",
		metric.WithDescription("Number of routes in the published generation"),
		metric.WithUnit("{endpoint}"),
	)
	if err != nil {
		return nil, err
	}

	generation, err := meter.Int64Gauge(
		"thv_gateway_generation",
		metric.WithDescription("Number of the published generation"),
	)
	if err != nil {
		return nil, err
	}

	return &RegistryMetrics{
		reloadDuration: reloadDuration,
		endpointsTotal: endpointsTotal,
		generation:     generation,
	}, nil
}

// RecordReload records one reload attempt
func (m *RegistryMetrics) RecordReload(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil || m.reloadDuration == nil {
		return
	}
	m.reloadDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordGeneration records the size and number of a freshly published generation
func (m *RegistryMetrics) RecordGeneration(ctx context.Context, number uint64, endpoints int) {
	if m == nil || m.generation == nil {
		return
	}
	m.generation.Record(ctx, int64(number)) //nolint:gosec // generation numbers stay far below MaxInt64
	m.endpointsTotal.Record(ctx, int64(endpoints))
}

// SyncMetrics holds the OpenTelemetry instruments for catalog sync passes
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	records      metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"thv_gateway_sync_duration_seconds",
		metric.WithDescription("Duration of catalog sync passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"thv_gateway_sync_records_total",
		metric.WithDescription("Catalog records touched by sync, by result"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		records:      records,
	}, nil
}

// RecordSyncDuration records the duration of a sync pass
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}
	m.syncDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordSyncRecords adds n records with the given result (created, updated, deactivated, skipped)
func (m *SyncMetrics) RecordSyncRecords(ctx context.Context, result string, n int) {
	if m == nil || m.records == nil || n <= 0 {
		return
	}
	m.records.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}

// AccessMetrics holds the OpenTelemetry instruments for access decisions
type AccessMetrics struct {
	decisions metric.Int64Counter
	refreshes metric.Int64Counter
}

// NewAccessMetrics creates a new AccessMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewAccessMetrics(provider metric.MeterProvider) (*AccessMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(AccessMetricsMeterName)

	decisions, err := meter.Int64Counter(
		"thv_gateway_access_decisions_total",
		metric.WithDescription("Access decisions by outcome and reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	refreshes, err := meter.Int64Counter(
		"thv_gateway_access_cache_refreshes_total",
		metric.WithDescription("Protected endpoint cache refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	return &AccessMetrics{
		decisions: decisions,
		refreshes: refreshes,
	}, nil
}

// RecordDecision counts one access decision
func (m *AccessMetrics) RecordDecision(ctx context.Context, allowed bool, reason string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("allowed", allowed),
		attribute.String("reason", reason),
	))
}

// RecordRefresh counts one cache refresh attempt
func (m *AccessMetrics) RecordRefresh(ctx context.Context, outcome string) {
	if m == nil || m.refreshes == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
