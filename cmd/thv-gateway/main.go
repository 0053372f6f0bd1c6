// Package main is the entry point for the ToolHive gateway.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-gateway/cmd/thv-gateway/app"
	"github.com/stacklok/toolhive-gateway/internal/config"
)

// getLogLevel reads THV_GATEWAY_LOG_LEVEL, then LOG_LEVEL. Accepts slog level
// names with offsets ("debug", "warn", "info+2") and the alias "warning".
// Unset or invalid values give info.
func getLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	raw := strings.TrimSpace(v.GetString("log_level"))
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if raw == "" {
		return slog.LevelInfo
	}
	if strings.EqualFold(raw, "warning") {
		return slog.LevelWarn
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		slog.Warn("Invalid log level, using INFO", "value", raw)
		return slog.LevelInfo
	}
	return level
}

// traceHandler adds the trace_id and span_id of the active span to records
// logged with a context.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(&traceHandler{Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})})
}

func main() {
	// stdout is reserved for command output such as version --format json
	slog.SetDefault(newLogger(os.Stderr, getLogLevel()))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
