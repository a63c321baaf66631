// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkhoard/linkhoard/internal/config"
	"github.com/linkhoard/linkhoard/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *MigrateDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(deps, func(cmd *cobra.Command, m Migrator, _ []string) error {
			cmd.Println("Running migrations...")
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (drops every table)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(deps, func(cmd *cobra.Command, m Migrator, _ []string) error {
			cmd.Println("Rolling back migrations...")
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Rollback completed successfully")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(deps, func(cmd *cobra.Command, m Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if dirty {
				cmd.Printf("Version: %d (dirty)\n", v)
				return nil
			}
			cmd.Printf("Version: %d\n", v)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied without running any migration. Use it to
recover from a dirty database after fixing the schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(deps, func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Forced version %d\n", v)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(deps, printMigrationStatus),
	})

	return cmd
}

type migrateFunc func(cmd *cobra.Command, m Migrator, args []string) error

// withMigrator resolves the database URL, opens a migrator for fn and
// closes it afterwards.
func withMigrator(deps *MigrateDeps, fn migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").With("key", "database.url").
				Errorf("database URL is required (set %s)", config.EnvDatabaseURL)
		}

		m, err := deps.MigratorFactory(cfg.Database.URL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "initialize migrator").Wrap(err)
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
			}
		}()

		return fn(cmd, m, args)
	}
}

func printMigrationStatus(cmd *cobra.Command, m Migrator, _ []string) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Current version: %d (%s)\n", v, state)

	for _, group := range []struct {
		label    string
		versions []uint
	}{{"Applied", applied}, {"Pending", pending}} {
		cmd.Printf("%s: %d\n", group.label, len(group.versions))
		for _, ver := range group.versions {
			name, err := store.MigrationName(ver)
			if err != nil {
				return err
			}
			cmd.Printf("  %s\n", name)
		}
	}
	return nil
}

// parseForceVersion reads the leading integer of s.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q: must be an integer", s)
	}
	return v, nil
}
