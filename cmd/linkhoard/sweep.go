// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkhoard/linkhoard/internal/config"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and reset tokens once",
		Long: `Delete expired server-side sessions and password reset tokens, then
exit. The serve command does this periodically on its own.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSweepWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runSweepWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogging(cfg, cmd)
	if err != nil {
		return err
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL, poolConfig(cfg))
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	app, err := buildApp(ctx, cfg, db, deps, nil, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.sweeper.RunOnce(ctx)
	if err != nil {
		return oops.With("operation", "sweep").Wrap(err)
	}

	cmd.Printf("Removed %d expired sessions and %d expired reset tokens\n", result.Sessions, result.Resets)
	return nil
}
