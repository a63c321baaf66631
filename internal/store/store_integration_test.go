// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

//go:build integration

package store_test

import (
	"context"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/linkhoard/linkhoard/internal/store"
)

var _ = Describe("PostgreSQL store", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("linkhoard_test"),
			postgres.WithUsername("linkhoard"),
			postgres.WithPassword("linkhoard"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	Describe("Migrator", func() {
		It("runs the full up and down cycle", func() {
			migrator, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer migrator.Close()

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
			Expect(dirty).To(BeFalse())

			pending, err := migrator.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(Equal([]uint{1, 2, 3}))

			Expect(migrator.Up()).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(3)))

			Expect(migrator.Steps(-1)).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(uint(2)))

			Expect(migrator.Up()).To(Succeed())
			Expect(migrator.Down()).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())

			Expect(migrator.Up()).To(Succeed())
		})
	})

	Describe("Open", func() {
		It("connects and sees the migrated schema", func() {
			pool, err := store.Open(ctx, connStr, store.DefaultPoolConfig(), slog.Default())
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			var tables int
			err = pool.QueryRow(ctx, `
				SELECT COUNT(*) FROM information_schema.tables
				WHERE table_name IN ('users', 'web_sessions', 'password_resets')
			`).Scan(&tables)
			Expect(err).NotTo(HaveOccurred())
			Expect(tables).To(Equal(3))
		})

		It("enforces case-insensitive usernames", func() {
			pool, err := store.Open(ctx, connStr, store.DefaultPoolConfig(), nil)
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			_, err = pool.Exec(ctx, `INSERT INTO users (id, username, password_hash) VALUES ('a', 'Alice', 'h')`)
			Expect(err).NotTo(HaveOccurred())
			_, err = pool.Exec(ctx, `INSERT INTO users (id, username, password_hash) VALUES ('b', 'alice', 'h')`)
			Expect(err).To(HaveOccurred())
		})
	})
})
