// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordResetService issues, validates, and consumes password reset tokens.
type PasswordResetService struct {
	users  UserRepository
	resets PasswordResetRepository
	hasher PasswordHasher
	policy ResetPolicy
	logger *slog.Logger
	now    func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	policy ResetPolicy,
) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, resets, hasher, policy, slog.Default())
}

// NewPasswordResetServiceWithLogger creates a new PasswordResetService with a custom logger.
func NewPasswordResetServiceWithLogger(
	users UserRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	policy ResetPolicy,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	}
	if resets == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		users:  users,
		resets: resets,
		hasher: hasher,
		policy: policy.withDefaults(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Policy returns the effective reset policy.
func (s *PasswordResetService) Policy() ResetPolicy {
	return s.policy
}

// Request issues a reset token for the user owning emailHash and returns
// the raw token, which is never stored. An unknown hash returns ("", nil)
// so callers cannot tell it apart from a delivered request. Prior tokens of
// the user are invalidated. The rate-limit count is read before the insert
// without a lock, so concurrent requests may exceed it slightly.
func (s *PasswordResetService) Request(ctx context.Context, emailHash string) (string, error) {
	user, err := s.users.GetByEmailHash(ctx, emailHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmailHash").
			Wrap(err)
	}

	now := s.now()

	existing, err := s.resets.ListByUser(ctx, user.ID)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "ListByUser").
			Wrap(err)
	}
	if limit := CheckResetRequests(s.policy, existing, now); limit.Limited {
		return "", oops.Code(CodeResetRateLimited).
			With("issued", limit.Issued).
			With("retry_after", limit.RetryAfter.String()).
			Errorf("too many password reset requests")
	}

	if err := s.resets.InvalidateByUser(ctx, user.ID, now); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "InvalidateByUser").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GenerateResetToken").
			Wrap(err)
	}

	reset, err := NewPasswordReset(user.ID, hash, now, now.Add(s.policy.TokenTTL))
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "NewPasswordReset").
			Wrap(err)
	}

	if err := s.resets.Create(ctx, reset); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "Create").
			Wrap(err)
	}

	return token, nil
}

// Validate reports whether token refers to a live, unsuperseded request.
// It does not mutate state.
func (s *PasswordResetService) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	valid, err := s.resets.IsValidToken(ctx, HashResetToken(token))
	if err != nil {
		return false, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "IsValidToken").
			Wrap(err)
	}
	return valid, nil
}

// Consume sets a new password using a reset token and returns the owning
// user's ID. The token record is claimed (deleted) before the password is
// written, so a token succeeds at most once even under concurrent use. If
// the password cannot be written the claim is undone.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, errResetTokenInvalid()
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, errResetTokenInvalid()
		}
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "GetByTokenHash").
			Wrap(err)
	}

	if reset.IsInvalidated() {
		return ulid.ULID{}, errResetTokenInvalid()
	}
	if reset.IsExpiredAt(s.now()) {
		return ulid.ULID{}, errResetTokenExpired()
	}

	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, errResetTokenInvalid()
		}
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "GetByID").
			Wrap(err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Hash").
			Wrap(err)
	}

	deleted, err := s.resets.Delete(ctx, reset.ID)
	if err != nil {
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Delete").
			Wrap(err)
	}
	if !deleted {
		return ulid.ULID{}, errResetTokenInvalid()
	}

	user.PasswordHash = hashed
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		// Put the claimed token back so the link still works on retry.
		if restoreErr := s.resets.Create(ctx, reset); restoreErr != nil {
			s.logger.WarnContext(ctx, "failed to restore claimed reset token",
				"operation", "restore reset token",
				"user_id", user.ID.String(),
				"error", restoreErr)
		}
		return ulid.ULID{}, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "Update").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return user.ID, nil
}

// Revoke removes every reset request of a user. Failures are logged, not
// returned.
func (s *PasswordResetService) Revoke(ctx context.Context, userID ulid.ULID) {
	if err := s.resets.DeleteByUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "best-effort reset token cleanup failed",
			"operation", "delete_tokens",
			"user_id", userID.String(),
			"error", err.Error())
	}
}

// Sweep deletes requests that no longer affect validation or rate limiting.
func (s *PasswordResetService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.resets.DeleteExpired(ctx, s.policy.RetentionCutoff(s.now()))
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").
			With("operation", "DeleteExpired").
			Wrap(err)
	}
	return n, nil
}
