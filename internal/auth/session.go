// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32 // 32 bytes = 64 hex chars
)

// SessionData is the opaque key/value payload of a server-side session.
type SessionData struct {
	UserID       *ulid.ULID `json:"user_id,omitempty"`
	KeepSignedIn bool       `json:"keep_signed_in,omitempty"`
	Flash        *Flash     `json:"flash,omitempty"`
}

// WebSession is a server-side session record. The client holds only the
// plaintext token; the record is keyed by its hash.
type WebSession struct {
	ID        ulid.ULID
	TokenHash string
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewWebSession creates a validated WebSession instance.
// Data.UserID is optional; anonymous sessions only carry flash messages.
func NewWebSession(tokenHash string, data SessionData, expiresAt time.Time) (*WebSession, error) {
	if data.UserID != nil && data.UserID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero when provided")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	now := time.Now()
	return &WebSession{
		ID:        ulid.Make(),
		TokenHash: tokenHash,
		Data:      data,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *WebSession) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *WebSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashSessionToken(token)

	return token, hash, nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// WebSessionRepository manages server-side session persistence.
// Concurrent writers to one record are last-write-wins.
type WebSessionRepository interface {
	// Create stores a new web session.
	Create(ctx context.Context, session *WebSession) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*WebSession, error)

	// Update overwrites the data and expiry of a session.
	Update(ctx context.Context, session *WebSession) error

	// Delete removes a session by ID.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all sessions for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes all expired sessions and returns the count
	// of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}
