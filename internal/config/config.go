// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package config loads the process configuration once at startup.
//
// Sources, lowest precedence first: built-in defaults, the YAML file given
// with --config, command-line flags the user actually set, and secrets from
// the environment.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/logging"
	"github.com/linkhoard/linkhoard/internal/session"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session strategies and record stores.
const (
	StrategyCookie = "cookie"
	StrategyRecord = "record"

	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Mail drivers.
const (
	MailLog  = "log"
	MailSMTP = "smtp"
)

// Config is the complete process configuration.
type Config struct {
	Env         string `koanf:"env"`
	MetricsAddr string `koanf:"metrics_addr"`

	HTTP     HTTPConfig     `koanf:"http"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	Mail     MailConfig     `koanf:"mail"`
}

// HTTPConfig configures the web listener.
type HTTPConfig struct {
	Addr    string `koanf:"addr"`
	BaseURL string `koanf:"base_url"` // absolute, used to build reset links
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MaxConns       int32  `koanf:"max_conns"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// SessionConfig selects the session strategy.
type SessionConfig struct {
	Strategy      string        `koanf:"strategy"`
	Store         string        `koanf:"store"` // record strategy only
	CookieName    string        `koanf:"cookie_name"`
	Secret        string        `koanf:"secret"` // cookie strategy only
	PersistentTTL time.Duration `koanf:"persistent_ttl"`
	BrowserTTL    time.Duration `koanf:"browser_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// AuthConfig holds credential hashing and reset settings.
type AuthConfig struct {
	IdentifierKey string       `koanf:"identifier_key"`
	Argon2        Argon2Config `koanf:"argon2"`
	Reset         ResetConfig  `koanf:"reset"`
}

// Argon2Config is the password hashing cost.
type Argon2Config struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// ResetConfig is the password reset policy.
type ResetConfig struct {
	TokenTTL    time.Duration `koanf:"token_ttl"`
	Window      time.Duration `koanf:"window"`
	MaxRequests int           `koanf:"max_requests"`
}

// MailConfig selects how reset mail is delivered.
type MailConfig struct {
	Driver string     `koanf:"driver"`
	SMTP   SMTPConfig `koanf:"smtp"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Retries  uint64 `koanf:"retries"`
}

// Default returns the built-in configuration.
func Default() Config {
	hash := auth.DefaultHashParams()
	reset := auth.DefaultResetPolicy()
	return Config{
		Env:         EnvProduction,
		MetricsAddr: "127.0.0.1:9100",
		HTTP:        HTTPConfig{Addr: ":8080", BaseURL: "http://localhost:8080"},
		Log:         LogConfig{Format: logging.FormatJSON, Level: "info"},
		Database:    DatabaseConfig{MaxConns: 5, ConnectRetries: 5},
		Session: SessionConfig{
			Strategy:      StrategyRecord,
			Store:         StorePostgres,
			CookieName:    session.DefaultCookieName,
			PersistentTTL: session.DefaultPersistentTTL,
			BrowserTTL:    session.DefaultBrowserTTL,
			SweepInterval: auth.DefaultSweepInterval,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Auth: AuthConfig{
			Argon2: Argon2Config{Time: hash.Time, MemoryKiB: hash.MemoryKiB, Threads: hash.Threads},
			Reset:  ResetConfig{TokenTTL: reset.TokenTTL, Window: reset.Window, MaxRequests: reset.MaxRequests},
		},
		Mail: MailConfig{Driver: MailLog, SMTP: SMTPConfig{Port: 587, Retries: 2}},
	}
}

// RegisterFlags adds the command-line overrides to fs, with defaults from
// Default. Flag names map to keys by replacing "-" with ".".
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("env", d.Env, "environment (development or production)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("http-addr", d.HTTP.Addr, "web listen address")
	fs.String("http-base-url", d.HTTP.BaseURL, "public base URL of the web interface")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("session-strategy", d.Session.Strategy, "session strategy (cookie or record)")
	fs.String("session-store", d.Session.Store, "session record store (postgres or redis)")
	fs.String("mail-driver", d.Mail.Driver, "reset mail delivery (log or smtp)")
}

// flagKeys maps flag names whose key is not a plain "-" to "." rewrite.
var flagKeys = map[string]string{
	"metrics-addr":  "metrics_addr",
	"http-base-url": "http.base_url",
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", ".")
}

// Secret environment variables.
const (
	EnvDatabaseURL     = "LINKHOARD_DATABASE_URL"
	EnvSessionSecret   = "LINKHOARD_SESSION_SECRET"
	EnvIdentifierKey   = "LINKHOARD_IDENTIFIER_KEY"
	EnvRedisPassword   = "LINKHOARD_REDIS_PASSWORD"
	EnvSMTPPassword    = "LINKHOARD_SMTP_PASSWORD"
	envDatabaseURLBare = "DATABASE_URL"
)

var secretKeys = []struct{ env, key string }{
	{envDatabaseURLBare, "database.url"},
	{EnvDatabaseURL, "database.url"},
	{EnvSessionSecret, "session.secret"},
	{EnvIdentifierKey, "auth.identifier_key"},
	{EnvRedisPassword, "redis.password"},
	{EnvSMTPPassword, "mail.smtp.password"},
}

// Load builds the configuration. path may be empty; fs may be nil; getenv
// is usually os.Getenv.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if getenv != nil {
		for _, s := range secretKeys {
			if v := getenv(s.env); v != "" {
				if err := k.Set(s.key, v); err != nil {
					return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", s.env).Wrap(err)
				}
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the configuration for serving.
func (c *Config) Validate() error {
	invalid := func(key string, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	switch {
	case c.Env != EnvDevelopment && c.Env != EnvProduction:
		return invalid("env", "env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	case !logging.ValidFormat(c.Log.Format):
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http address is required")
	case c.Database.URL == "":
		return invalid("database.url", "database URL is required (set %s)", EnvDatabaseURL)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if u, err := url.Parse(c.HTTP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("http.base_url", "base URL must be absolute, got %q", c.HTTP.BaseURL)
	}

	switch c.Session.Strategy {
	case StrategyCookie:
		if len(c.Session.Secret) < auth.MinSecretLength {
			return invalid("session.secret", "session secret must be at least %d bytes (set %s)", auth.MinSecretLength, EnvSessionSecret)
		}
	case StrategyRecord:
		if c.Session.Store != StorePostgres && c.Session.Store != StoreRedis {
			return invalid("session.store", "session store must be %q or %q, got %q", StorePostgres, StoreRedis, c.Session.Store)
		}
		if c.Session.Store == StoreRedis && c.Redis.Addr == "" {
			return invalid("redis.addr", "redis address is required for the redis session store")
		}
	default:
		return invalid("session.strategy", "session strategy must be %q or %q, got %q", StrategyCookie, StrategyRecord, c.Session.Strategy)
	}

	r := c.Auth.Reset
	if r.TokenTTL <= 0 || r.Window <= 0 || r.MaxRequests <= 0 {
		return invalid("auth.reset", "reset token_ttl, window and max_requests must be positive")
	}

	switch c.Mail.Driver {
	case MailLog:
		if c.Env == EnvProduction {
			return invalid("mail.driver", "the log mail driver is for development only")
		}
	case MailSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			return invalid("mail.smtp", "smtp host and from are required")
		}
	default:
		return invalid("mail.driver", "mail driver must be %q or %q, got %q", MailLog, MailSMTP, c.Mail.Driver)
	}
	return nil
}

// Development reports whether the process runs in local development.
func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

// SessionManagerConfig returns the session manager settings.
func (c *Config) SessionManagerConfig() session.Config {
	return session.Config{
		CookieName:    c.Session.CookieName,
		Secure:        !c.Development(),
		PersistentTTL: c.Session.PersistentTTL,
		BrowserTTL:    c.Session.BrowserTTL,
	}
}

// HashParams returns the argon2id cost.
func (c *Config) HashParams() auth.HashParams {
	return auth.HashParams{Time: c.Auth.Argon2.Time, MemoryKiB: c.Auth.Argon2.MemoryKiB, Threads: c.Auth.Argon2.Threads}
}

// ResetPolicy returns the password reset policy.
func (c *Config) ResetPolicy() auth.ResetPolicy {
	return auth.ResetPolicy{TokenTTL: c.Auth.Reset.TokenTTL, Window: c.Auth.Reset.Window, MaxRequests: c.Auth.Reset.MaxRequests}
}

// ResetURL returns the absolute URL of the reset form.
func (c *Config) ResetURL() string {
	return strings.TrimRight(c.HTTP.BaseURL, "/") + "/password/reset"
}
