// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// Session lifetimes.
const (
	DefaultPersistentTTL = 30 * 24 * time.Hour
	DefaultBrowserTTL    = 24 * time.Hour
)

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "linkhoard_session"

// State is the durable part of a session.
type State struct {
	UserID     *ulid.ULID // nil for anonymous sessions carrying only a flash
	Persistent bool
	Flash      *auth.Flash
	ExpiresAt  time.Time

	// Set by RecordBackend.
	recordID   ulid.ULID
	credential string
}

// Authenticated reports whether the state belongs to a user.
func (s *State) Authenticated() bool {
	return s != nil && s.UserID != nil
}

// ExpiredAt reports whether the state is expired at t.
func (s *State) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Backend is one session persistence strategy.
type Backend interface {
	// Load resolves an inbound credential. It returns nil, nil when the
	// credential is malformed, unknown or expired.
	Load(ctx context.Context, credential string) (*State, error)

	// Save persists state and returns the credential the client must hold.
	Save(ctx context.Context, state *State) (string, error)

	// Destroy invalidates state server-side where the strategy allows it.
	Destroy(ctx context.Context, state *State) error
}

// UserLookup resolves user ids for Store.CurrentUser.
type UserLookup interface {
	GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error)
}
