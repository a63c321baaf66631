// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package authtest provides in-memory auth repositories and helpers for tests.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// UserRepository is an in-memory auth.UserRepository.
type UserRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[ulid.ULID]auth.User)}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.users[user.ID] = *user
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByEmailHash retrieves a user by e-mail hash.
func (r *UserRepository) GetByEmailHash(_ context.Context, emailHash string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.EmailHash != nil && *u.EmailHash == emailHash {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Update writes the mutable fields of a user.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return auth.ErrNotFound
	}
	if err := r.checkUnique(user); err != nil {
		return err
	}
	r.users[user.ID] = *user
	return nil
}

// Remove deletes a user outright; the core never does this.
func (r *UserRepository) Remove(id ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

func (r *UserRepository) checkUnique(user *auth.User) error {
	for id, u := range r.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(u.Username, user.Username) {
			return auth.ErrDuplicateUsername
		}
		if u.EmailHash != nil && user.EmailHash != nil && *u.EmailHash == *user.EmailHash {
			return auth.ErrDuplicateEmail
		}
	}
	return nil
}

// ResetRepository is an in-memory auth.PasswordResetRepository.
type ResetRepository struct {
	mu     sync.Mutex
	resets map[ulid.ULID]auth.PasswordReset
	now    func() time.Time
}

// NewResetRepository creates an empty ResetRepository. now may be nil.
func NewResetRepository(now func() time.Time) *ResetRepository {
	if now == nil {
		now = time.Now
	}
	return &ResetRepository{resets: make(map[ulid.ULID]auth.PasswordReset), now: now}
}

// Create stores a new reset request.
func (r *ResetRepository) Create(_ context.Context, reset *auth.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[reset.ID] = *reset
	return nil
}

// GetByTokenHash retrieves a reset request by token hash.
func (r *ResetRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reset := range r.resets {
		if reset.TokenHash == tokenHash {
			return &reset, nil
		}
	}
	return nil, auth.ErrNotFound
}

// ListByUser returns the user's reset requests, newest first.
func (r *ResetRepository) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auth.PasswordReset
	for _, reset := range r.resets {
		if reset.UserID == userID {
			out = append(out, &reset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// IsValidToken reports whether a live request with the hash exists.
func (r *ResetRepository) IsValidToken(_ context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, reset := range r.resets {
		if reset.TokenHash == tokenHash {
			return !reset.IsInvalidated() && !reset.IsExpiredAt(now), nil
		}
	}
	return false, nil
}

// InvalidateByUser marks the user's pending requests as superseded.
func (r *ResetRepository) InvalidateByUser(_ context.Context, userID ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reset := range r.resets {
		if reset.UserID == userID && reset.InvalidatedAt == nil {
			stamp := at
			reset.InvalidatedAt = &stamp
			r.resets[id] = reset
		}
	}
	return nil
}

// Delete removes a reset request.
func (r *ResetRepository) Delete(_ context.Context, id ulid.ULID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resets[id]; !ok {
		return false, nil
	}
	delete(r.resets, id)
	return true, nil
}

// DeleteByUser removes all reset requests for a user.
func (r *ResetRepository) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reset := range r.resets {
		if reset.UserID == userID {
			delete(r.resets, id)
		}
	}
	return nil
}

// DeleteExpired removes requests that expired before the cutoff.
func (r *ResetRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, reset := range r.resets {
		if reset.ExpiresAt.Before(before) {
			delete(r.resets, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored reset requests.
func (r *ResetRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resets)
}

// SessionRepository is an in-memory auth.WebSessionRepository.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]auth.WebSession
	now      func() time.Time
}

// NewSessionRepository creates an empty SessionRepository. now may be nil.
func NewSessionRepository(now func() time.Time) *SessionRepository {
	if now == nil {
		now = time.Now
	}
	return &SessionRepository{sessions: make(map[ulid.ULID]auth.WebSession), now: now}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.WebSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// GetByTokenHash retrieves a session by token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.WebSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Update overwrites the data and expiry of a session.
func (r *SessionRepository) Update(_ context.Context, session *auth.WebSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return auth.ErrNotFound
	}
	r.sessions[session.ID] = *session
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.Data.UserID != nil && *s.Data.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// DeleteExpired removes expired sessions.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SentMail is one recorded password reset e-mail.
type SentMail struct {
	To           string
	Token        string
	ResetURLBase string
}

// Mailer records password reset e-mails instead of sending them.
type Mailer struct {
	mu   sync.Mutex
	sent []SentMail
}

// SendPasswordResetEmail records the e-mail.
func (m *Mailer) SendPasswordResetEmail(_ context.Context, to, rawToken, resetURLBase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{To: to, Token: rawToken, ResetURLBase: resetURLBase})
	return nil
}

// Sent returns a copy of the recorded e-mails.
func (m *Mailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent e-mail, if any.
func (m *Mailer) Last() (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// FastHasher returns an argon2id hasher with minimal cost for tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(auth.HashParams{Time: 1, MemoryKiB: 64, Threads: 1})
}

var (
	_ auth.UserRepository          = (*UserRepository)(nil)
	_ auth.PasswordResetRepository = (*ResetRepository)(nil)
	_ auth.WebSessionRepository    = (*SessionRepository)(nil)
	_ auth.Mailer                  = (*Mailer)(nil)
)
