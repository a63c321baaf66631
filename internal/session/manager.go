// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/observability"
)

// Config controls cookie attributes and session lifetimes.
type Config struct {
	CookieName    string
	Secure        bool // false only in local development
	PersistentTTL time.Duration
	BrowserTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.PersistentTTL <= 0 {
		c.PersistentTTL = DefaultPersistentTTL
	}
	if c.BrowserTTL <= 0 {
		c.BrowserTTL = DefaultBrowserTTL
	}
	return c
}

// ManagerDeps holds the Manager's collaborators.
type ManagerDeps struct {
	Backend Backend
	Users   UserLookup
	Config  Config
	Logger  *slog.Logger           // optional
	Metrics *observability.Metrics // optional
}

// Manager resolves and commits request sessions for one backend.
type Manager struct {
	backend Backend
	users   UserLookup
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.Backend == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("session backend is required")
	}
	if deps.Users == nil {
		return nil, oops.Code("SESSION_MANAGER_INVALID").Errorf("user lookup is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: deps.Backend,
		users:   deps.Users,
		cfg:     deps.Config.withDefaults(),
		now:     time.Now,
		logger:  logger,
		metrics: deps.Metrics,
	}, nil
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

func (m *Manager) ttl(persistent bool) time.Duration {
	if persistent {
		return m.cfg.PersistentTTL
	}
	return m.cfg.BrowserTTL
}

// Load resolves the request's session cookie. A missing, invalid or expired
// credential yields an empty Store; invalid ones are cleared at commit.
// Storage failures are returned.
func (m *Manager) Load(r *http.Request) (*Store, error) {
	store := &Store{mgr: m}

	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return store, nil
	}

	state, err := m.backend.Load(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if state == nil || state.ExpiredAt(m.now()) {
		m.metrics.RecordSession(observability.SessionRejected)
		store.clear = true
		return store, nil
	}

	store.state = state
	return store, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, credential string, state *State) {
	cookie := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    credential,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if state.Persistent {
		cookie.Expires = state.ExpiresAt.UTC()
		cookie.MaxAge = max(int(state.ExpiresAt.Sub(m.now()).Seconds()), 1)
	}
	http.SetCookie(w, cookie)
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying store.
func NewContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, store)
}

// FromContext returns the request's Store, or nil outside Middleware.
func FromContext(ctx context.Context) *Store {
	store, _ := ctx.Value(contextKey{}).(*Store)
	return store
}
