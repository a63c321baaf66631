// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at ERROR. For oops errors the code and context are
// logged as separate attributes so they stay queryable.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logAt(ctx, logger, slog.LevelError, msg, err)
}

// LogWarn is LogError at WARN, for failures the caller recovers from.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logAt(ctx, logger, slog.LevelWarn, msg, err)
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Log(ctx, level, msg, "error", err.Error())
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if fields := oopsErr.Context(); len(fields) > 0 {
		attrs = append(attrs, "context", fields)
	}
	logger.Log(ctx, level, msg, attrs...)
}
