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

// Reset token configuration.
const (
	ResetTokenBytes = 32 // 32 bytes = 64 hex chars
)

// PasswordReset represents a password reset grant. Only the hash of the
// token is stored; the raw token is handed out once.
type PasswordReset struct {
	ID            ulid.ULID
	UserID        ulid.ULID
	TokenHash     string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	InvalidatedAt *time.Time // set when superseded by a newer request
}

// NewPasswordReset creates a validated PasswordReset instance.
func NewPasswordReset(userID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*PasswordReset, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}

	return &PasswordReset{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// IsExpiredAt returns true if the reset token is expired at t.
func (r *PasswordReset) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// IsInvalidated returns true if a newer request superseded this one.
func (r *PasswordReset) IsInvalidated() bool {
	return r.InvalidatedAt != nil
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is sent to the user; the hash is stored in the database.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashResetToken(token)

	return token, hash, nil
}

// HashResetToken computes the SHA256 hash of a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// PasswordResetRepository manages password reset persistence.
type PasswordResetRepository interface {
	// Create stores a new password reset request.
	Create(ctx context.Context, reset *PasswordReset) error

	// GetByTokenHash retrieves a reset request by its token hash,
	// including invalidated and expired ones.
	GetByTokenHash(ctx context.Context, tokenHash string) (*PasswordReset, error)

	// ListByUser returns every stored reset request of a user, newest first.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*PasswordReset, error)

	// IsValidToken reports whether a request with the hash exists, is not
	// invalidated, and has not expired.
	IsValidToken(ctx context.Context, tokenHash string) (bool, error)

	// InvalidateByUser marks all pending requests of a user as superseded.
	// The rows stay so they still count toward the rate limit.
	InvalidateByUser(ctx context.Context, userID ulid.ULID, at time.Time) error

	// Delete removes a reset request. Returns false if it did not exist.
	Delete(ctx context.Context, id ulid.ULID) (bool, error)

	// DeleteByUser removes all reset requests for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes requests that expired before the cutoff and
	// returns the count.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
