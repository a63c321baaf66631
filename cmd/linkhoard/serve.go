// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkhoard/linkhoard/internal/config"
	"github.com/linkhoard/linkhoard/internal/logging"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Long: `Run the web server together with the metrics/health endpoint and
the background sweeper that removes expired sessions and reset tokens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// setupLogging validates the configuration and installs the default logger.
func setupLogging(cfg *config.Config, cmd *cobra.Command) (*slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, oops.With("operation", "validate configuration").Wrap(err)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault(logging.Options{
		Service: "linkhoard",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Output:  cmd.ErrOrStderr(),
	}), nil
}

func poolConfig(cfg *config.Config) store.PoolConfig {
	pc := store.DefaultPoolConfig()
	pc.MaxConns = cfg.Database.MaxConns
	pc.ConnectRetries = cfg.Database.ConnectRetries
	return pc
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := setupLogging(cfg, cmd)
	if err != nil {
		return err
	}

	logger.Info("starting linkhoard",
		"http_addr", cfg.HTTP.Addr,
		"session_strategy", cfg.Session.Strategy,
		"env", cfg.Env,
	)

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL, poolConfig(cfg))
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		obsServer.AddCheck("database", db.Ping)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	app, err := buildApp(ctx, cfg, db, deps, metrics, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	if obsServer != nil {
		for name, check := range app.checks {
			obsServer.AddCheck(name, check)
		}
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrChan <- err
		}
		close(httpErrChan)
	}()
	go monitorServerErrors(ctx, cancel, httpErrChan, "http", logger)

	app.sweeper.Start(ctx)
	defer app.sweeper.Stop()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("Linkhoard started")
	logger.Info("web server listening", "addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
