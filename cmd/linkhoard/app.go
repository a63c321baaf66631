// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
	authpg "github.com/linkhoard/linkhoard/internal/auth/postgres"
	authredis "github.com/linkhoard/linkhoard/internal/auth/redis"
	"github.com/linkhoard/linkhoard/internal/config"
	"github.com/linkhoard/linkhoard/internal/mail"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/session"
	"github.com/linkhoard/linkhoard/internal/web"
)

// application is the wired object graph shared by serve and sweep.
type application struct {
	handler http.Handler
	sweeper *auth.Sweeper
	closers []func()
	// checks are dependency probes beyond the database.
	checks map[string]observability.Check
}

// Close releases resources acquired while building, newest first.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires repositories, services, the session manager and the web
// handler. metrics may be nil.
func buildApp(ctx context.Context, cfg *config.Config, db Database, deps *ServeDeps,
	metrics *observability.Metrics, logger *slog.Logger,
) (*application, error) {
	app := &application{checks: make(map[string]observability.Check)}
	fail := func(err error) (*application, error) {
		app.Close()
		return nil, err
	}

	users := authpg.NewUserRepository(db)
	hasher := auth.NewArgon2idHasher(cfg.HashParams())

	resets, err := auth.NewPasswordResetServiceWithLogger(
		users, authpg.NewPasswordResetRepository(db), hasher, cfg.ResetPolicy(), logger)
	if err != nil {
		return fail(err)
	}

	// records stays nil with self-contained cookie sessions.
	var records auth.WebSessionRepository
	var backend session.Backend

	switch cfg.Session.Strategy {
	case config.StrategyCookie:
		codec, err := auth.NewTokenCodec([]byte(cfg.Session.Secret))
		if err != nil {
			return fail(err)
		}
		if backend, err = session.NewCookieBackend(codec); err != nil {
			return fail(err)
		}
	case config.StrategyRecord:
		if cfg.Session.Store == config.StoreRedis {
			client, err := deps.RedisFactory(ctx, authredis.ClientConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return fail(err)
			}
			app.closers = append(app.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("error closing redis client", "error", err)
				}
			})
			app.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			records = authredis.NewWebSessionRepository(client, cfg.Redis.Prefix)
		} else {
			records = authpg.NewWebSessionRepository(db)
		}
		if backend, err = session.NewRecordBackend(records, logger); err != nil {
			return fail(err)
		}
	default:
		return fail(oops.Code("CONFIG_INVALID").With("key", "session.strategy").
			Errorf("unknown session strategy %q", cfg.Session.Strategy))
	}

	mailerFactory := deps.MailerFactory
	if mailerFactory == nil {
		mailerFactory = func() (auth.Mailer, error) { return newMailer(cfg, logger) }
	}
	next, err := mailerFactory()
	if err != nil {
		return fail(err)
	}
	mailer, err := mail.NewQueue(next, mail.QueueConfig{}, logger)
	if err != nil {
		return fail(err)
	}
	app.closers = append(app.closers, mailer.Close)

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:       users,
		Resets:      resets,
		Hasher:      hasher,
		Identifiers: auth.NewIdentifierHasher(identifierKey(cfg)),
		Mailer:      mailer,
		Sessions:    records,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}

	mgr, err := session.NewManager(session.ManagerDeps{
		Backend: backend,
		Users:   users,
		Config:  cfg.SessionManagerConfig(),
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fail(err)
	}

	app.handler, err = web.NewHandler(web.Deps{
		Accounts: svc,
		Sessions: mgr,
		ResetURL: cfg.ResetURL(),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return fail(err)
	}

	app.sweeper, err = auth.NewSweeper(records, resets, cfg.Session.SweepInterval, logger)
	if err != nil {
		return fail(err)
	}
	return app, nil
}

func identifierKey(cfg *config.Config) []byte {
	if cfg.Auth.IdentifierKey == "" {
		return nil
	}
	return []byte(cfg.Auth.IdentifierKey)
}

// newMailer builds the configured mail driver.
func newMailer(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error) {
	switch cfg.Mail.Driver {
	case config.MailSMTP:
		m, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.SMTP.From,
			Retries:  cfg.Mail.SMTP.Retries,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.MailLog:
		return mail.NewLogMailer(logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "mail.driver").
			Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}
