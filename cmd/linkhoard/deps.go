// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"context"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	goredis "github.com/redis/go-redis/v9"

	"github.com/linkhoard/linkhoard/internal/auth"
	authredis "github.com/linkhoard/linkhoard/internal/auth/redis"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/store"
)

// ServeDeps contains injectable dependencies for the serve and sweep
// commands. All fields with nil values will use their default
// implementations.
type ServeDeps struct {
	// DatabaseFactory opens the PostgreSQL pool.
	// Default: store.Open
	DatabaseFactory func(ctx context.Context, url string, cfg store.PoolConfig) (Database, error)

	// RedisFactory connects to Redis for the redis session store.
	// Default: authredis.Connect
	RedisFactory func(ctx context.Context, cfg authredis.ClientConfig) (goredis.UniversalClient, error)

	// MailerFactory overrides the configured mail driver.
	// Default: newMailer
	MailerFactory func() (auth.Mailer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the web listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.DatabaseFactory == nil {
		out.DatabaseFactory = func(ctx context.Context, url string, cfg store.PoolConfig) (Database, error) {
			pool, err := store.Open(ctx, url, cfg, nil)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(ctx context.Context, cfg authredis.ClientConfig) (goredis.UniversalClient, error) {
			client, err := authredis.Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	AddCheck(name string, check observability.Check)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}
