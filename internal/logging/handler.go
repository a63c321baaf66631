// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package logging provides structured logging with OpenTelemetry trace context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Formats accepted by Setup.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options configures Setup.
type Options struct {
	Service string
	Version string
	Format  string     // FormatJSON (default) or FormatText
	Level   slog.Level // zero is INFO
	Output  io.Writer  // nil writes to os.Stderr
}

// traceHandler wraps a slog.Handler to add service identity and trace context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

// Handle adds trace context to the log record.
func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

// WithGroup returns a new handler with the given group.
func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// Setup creates a configured slog.Logger.
func Setup(opts Options) *slog.Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var base slog.Handler
	if opts.Format == FormatText {
		base = slog.NewTextHandler(w, handlerOpts)
	} else {
		base = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(&traceHandler{
		handler: base,
		service: opts.Service,
		version: opts.Version,
	})
}

// SetDefault sets up the logger and installs it as the slog default.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
// An empty name is INFO.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, oops.Code("LOG_LEVEL_INVALID").With("level", name).Wrap(err)
	}
	return level, nil
}

// ValidFormat reports whether format is accepted by Setup.
func ValidFormat(format string) bool {
	return format == "" || format == FormatJSON || format == FormatText
}
