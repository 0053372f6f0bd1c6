package database

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the database store tracer
	TracerName = "github.com/stacklok/toolhive-gateway/store/database"
)

// Custom attribute keys for business context
const (
	AttrEndpointPath   = attribute.Key("endpoint.path")
	AttrEndpointMethod = attribute.Key("endpoint.method")
	AttrUserID         = attribute.Key("user.id")
	AttrPageSize       = attribute.Key("pagination.limit")
	AttrPage           = attribute.Key("pagination.page")
	AttrResultCount    = attribute.Key("result.count")
)

// startSpan starts a database span carrying db.system. A nil tracer yields the
// span already in ctx.
func (s *Store) startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	opts = append([]trace.SpanStartOption{trace.WithAttributes(semconv.DBSystemPostgreSQL)}, opts...)
	return s.tracer.Start(ctx, name, opts...)
}
