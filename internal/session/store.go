// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/observability"
)

// ErrCommitted is returned by mutations that can no longer reach the client.
var ErrCommitted = errors.New("session already committed")

// Store is the session of one request. It is created by Manager.Load and
// written back by Commit. The zero state is "no session".
type Store struct {
	mgr *Manager

	mu         sync.Mutex
	state      *State
	dirty      bool
	clear      bool // client cookie must be removed
	committed  bool
	user       *auth.User
	userLoaded bool
}

// IsAuthenticated reports whether the request carries a signed-in session.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authenticated()
}

// CurrentUserID returns the signed-in user's id.
func (s *Store) CurrentUserID() (ulid.ULID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Authenticated() {
		return ulid.ULID{}, false
	}
	return *s.state.UserID, true
}

// CurrentUser loads the signed-in user on first use and caches it for the
// rest of the request. It returns nil, nil when nobody is signed in or the
// user no longer exists.
func (s *Store) CurrentUser(ctx context.Context) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Authenticated() {
		return nil, nil
	}
	if s.userLoaded {
		return s.user, nil
	}

	user, err := s.mgr.users.GetByID(ctx, *s.state.UserID)
	if errors.Is(err, auth.ErrNotFound) {
		s.userLoaded = true
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_USER_LOOKUP_FAILED").
			With("user_id", s.state.UserID.String()).
			Wrap(err)
	}
	s.user, s.userLoaded = user, true
	return user, nil
}

// Create signs userID in, superseding and destroying any existing session.
// Persistent sessions outlive the browser.
func (s *Store) Create(ctx context.Context, userID ulid.ULID, persistent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		s.mgr.logger.WarnContext(ctx, "session created after commit", "user_id", userID.String())
		return oops.Code("SESSION_COMMITTED").Wrap(ErrCommitted)
	}
	if userID.IsZero() {
		return oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}

	if s.state != nil {
		if err := s.mgr.backend.Destroy(ctx, s.state); err != nil {
			return err
		}
	}

	uid := userID
	s.state = &State{
		UserID:     &uid,
		Persistent: persistent,
		ExpiresAt:  s.mgr.now().Add(s.mgr.ttl(persistent)),
	}
	s.user, s.userLoaded = nil, false
	s.dirty = true
	s.clear = false
	s.mgr.metrics.RecordSession(observability.SessionCreated)
	return nil
}

// Destroy ends the session. Server-side state is removed immediately; the
// cookie is cleared at commit.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		if err := s.mgr.backend.Destroy(ctx, s.state); err != nil {
			return err
		}
		s.mgr.metrics.RecordSession(observability.SessionDestroyed)
	}
	if s.committed {
		s.mgr.logger.WarnContext(ctx, "session destroyed after commit; cookie not cleared")
	}

	s.state = nil
	s.user, s.userLoaded = nil, false
	s.dirty = true
	s.clear = true
	return nil
}

// SetFlash stores a one-shot message. Without a session an anonymous one is
// started so the message survives a redirect.
func (s *Store) SetFlash(ctx context.Context, typ auth.FlashType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		s.mgr.logger.WarnContext(ctx, "flash set after commit dropped", "type", string(typ))
		return
	}
	if s.state == nil {
		s.state = &State{ExpiresAt: s.mgr.now().Add(s.mgr.ttl(false))}
	}
	s.state.Flash = &auth.Flash{Type: typ, Message: message}
	s.dirty = true
}

// ConsumeFlash returns the pending flash and clears it.
func (s *Store) ConsumeFlash(ctx context.Context) *auth.Flash {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil || s.state.Flash == nil {
		return nil
	}
	if s.committed {
		s.mgr.logger.WarnContext(ctx, "flash consumed after commit ignored")
		return nil
	}
	flash := s.state.Flash
	s.state.Flash = nil
	s.dirty = true
	return flash
}

// Extend pushes the expiry forward by the session's lifetime and reissues
// the cookie. It reports false when there is no session to extend.
func (s *Store) Extend(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return false
	}
	if s.committed {
		s.mgr.logger.WarnContext(ctx, "session extended after commit dropped")
		return false
	}
	s.state.ExpiresAt = s.mgr.now().Add(s.mgr.ttl(s.state.Persistent))
	s.dirty = true
	s.mgr.metrics.RecordSession(observability.SessionExtended)
	return true
}

// Dirty reports whether the store has unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty && !s.committed
}

// Commit writes the session back and sets or clears the cookie on w. It
// runs once; later calls return nil without effect. It must be called
// before the response headers are written.
func (s *Store) Commit(ctx context.Context, w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return nil
	}
	s.committed = true

	state := s.state
	if state != nil && !state.Authenticated() && state.Flash == nil {
		// An anonymous session whose flash was read has nothing left to carry.
		if err := s.mgr.backend.Destroy(ctx, state); err != nil {
			return err
		}
		s.state, state = nil, nil
		s.clear = true
	}

	if state == nil {
		if s.clear {
			s.mgr.clearCookie(w)
		}
		return nil
	}
	if !s.dirty {
		return nil
	}

	credential, err := s.mgr.backend.Save(ctx, state)
	if err != nil {
		return err
	}
	s.mgr.setCookie(w, credential, state)
	return nil
}
