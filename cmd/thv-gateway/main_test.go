package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

//nolint:paralleltest // mutates environment variables
func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		prefixed string
		legacy   string
		want     slog.Level
	}{
		{name: "default", want: slog.LevelInfo},
		{name: "prefixed debug", prefixed: "debug", want: slog.LevelDebug},
		{name: "prefixed wins", prefixed: "error", legacy: "debug", want: slog.LevelError},
		{name: "legacy fallback", legacy: "WARN", want: slog.LevelWarn},
		{name: "warning alias", prefixed: "warning", want: slog.LevelWarn},
		{name: "offset", prefixed: "info+2", want: slog.LevelInfo + 2},
		{name: "invalid", prefixed: "loud", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("THV_GATEWAY_LOG_LEVEL", tt.prefixed)
			t.Setenv("LOG_LEVEL", tt.legacy)
			assert.Equal(t, tt.want, getLogLevel())
		})
	}
}

func TestLoggerInjectsTraceIDs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "registry.Reload")
	defer span.End()

	logger.InfoContext(ctx, "Published endpoint generation", "generation", 2)
	logger.Info("No span")
	logger.Debug("Filtered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var withSpan, withoutSpan map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &withSpan))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &withoutSpan))
	assert.Equal(t, span.SpanContext().TraceID().String(), withSpan["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), withSpan["span_id"])
	assert.NotContains(t, withoutSpan, "trace_id")
}
