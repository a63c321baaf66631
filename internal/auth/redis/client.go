// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// ClientConfig holds Redis connection settings.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// Connect creates a client and verifies the connection with a ping.
func Connect(ctx context.Context, cfg ClientConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Addr).Wrap(err)
	}
	return client, nil
}
