// Package otel provides OpenTelemetry span helpers shared by the gateway's
// long-running operations.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on reload, sync and store spans
const (
	AttrGeneration      = attribute.Key("gateway.generation")
	AttrEndpointCount   = attribute.Key("gateway.endpoints")
	AttrModuleFailures  = attribute.Key("gateway.module_failures")
	AttrSkipped         = attribute.Key("gateway.skipped")
	AttrSyncCreated     = attribute.Key("catalog.created")
	AttrSyncUpdated     = attribute.Key("catalog.updated")
	AttrSyncDeactivated = attribute.Key("catalog.deactivated")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the
// span already in ctx.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. The status description
// stays generic; details such as SQL or connection strings only appear in the
// recorded error event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
