// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/linkhoard/linkhoard/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Linkhoard CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkhoard",
		Short: "Linkhoard - a personal bookmark hoard",
		Long: `Linkhoard keeps your bookmarks. This binary runs the web server
and the maintenance tasks around its database.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/linkhoard/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// loadConfig reads the config file, the flags set on cmd and the
// environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.DefaultFile(os.Getenv)
	}
	return config.Load(path, cmd.Flags(), os.Getenv)
}
