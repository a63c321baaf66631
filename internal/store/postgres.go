// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package store owns the PostgreSQL connection pool and the schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes Open.
type PoolConfig struct {
	// MaxConns caps the pool size. Zero keeps the pgx default.
	MaxConns int32

	// ConnectRetries is how many failed pings are retried before Open gives up.
	ConnectRetries uint64

	// RetryBase is the first backoff delay; later delays grow exponentially.
	RetryBase time.Duration
}

// DefaultPoolConfig returns the settings used by the server.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{ConnectRetries: 5, RetryBase: 500 * time.Millisecond}
}

// pinger is the part of *pgxpool.Pool waitReady needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// Open creates a pool for dsn and waits until the database answers a ping.
func Open(ctx context.Context, dsn string, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitReady(ctx, pool, cfg, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitReady(ctx context.Context, db pinger, cfg PoolConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = DefaultPoolConfig().RetryBase
	}

	attempt := 0
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
