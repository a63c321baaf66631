// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
)

const resetColumns = `id, user_id, token_hash, expires_at, created_at, invalidated_at`

// PasswordResetRepository implements auth.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	pool poolIface
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool poolIface) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

// Create stores a new password reset request.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at, invalidated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, reset.ID.String(), reset.UserID.String(), reset.TokenHash, reset.ExpiresAt, reset.CreatedAt, reset.InvalidatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset request by its token hash.
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+resetColumns+` FROM password_resets WHERE token_hash = $1`, tokenHash)

	reset, err := scanReset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_BY_TOKEN_FAILED").
			With("operation", "get reset by token hash").
			Wrap(err)
	}
	return reset, nil
}

// ListByUser returns every stored reset request of a user, newest first.
func (r *PasswordResetRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.PasswordReset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+resetColumns+`
		FROM password_resets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("RESET_LIST_FAILED").
			With("operation", "list resets by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var resets []*auth.PasswordReset
	for rows.Next() {
		reset, err := scanReset(rows)
		if err != nil {
			return nil, oops.Code("RESET_SCAN_FAILED").
				With("operation", "scan reset row").
				Wrap(err)
		}
		resets = append(resets, reset)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RESET_ROWS_ERROR").
			With("operation", "iterate reset rows").
			Wrap(err)
	}
	return resets, nil
}

// IsValidToken reports whether a live, unsuperseded request with the hash exists.
func (r *PasswordResetRepository) IsValidToken(ctx context.Context, tokenHash string) (bool, error) {
	var valid bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM password_resets
			WHERE token_hash = $1 AND invalidated_at IS NULL AND expires_at > $2
		)
	`, tokenHash, time.Now()).Scan(&valid)
	if err != nil {
		return false, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "check reset token").
			Wrap(err)
	}
	return valid, nil
}

// InvalidateByUser marks all pending requests of a user as superseded.
func (r *PasswordResetRepository) InvalidateByUser(ctx context.Context, userID ulid.ULID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE password_resets SET invalidated_at = $2
		WHERE user_id = $1 AND invalidated_at IS NULL
	`, userID.String(), at)
	if err != nil {
		return oops.Code("RESET_INVALIDATE_FAILED").
			With("operation", "invalidate resets by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a reset request. Returns false if it was already gone.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE id = $1`, id.String())
	if err != nil {
		return false, oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteByUser removes all reset requests for a user.
func (r *PasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("RESET_DELETE_BY_USER_FAILED").
			With("operation", "delete password_resets by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes requests that expired before the cutoff.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, before)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password_resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanReset scans a single row into a PasswordReset.
// Callers are responsible for handling pgx.ErrNoRows.
func scanReset(row scanner) (*auth.PasswordReset, error) {
	var (
		idStr         string
		userIDStr     string
		tokenHash     string
		expiresAt     time.Time
		createdAt     time.Time
		invalidatedAt *time.Time
	)

	if err := row.Scan(&idStr, &userIDStr, &tokenHash, &expiresAt, &createdAt, &invalidatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset id").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.PasswordReset{
		ID:            id,
		UserID:        userID,
		TokenHash:     tokenHash,
		ExpiresAt:     expiresAt,
		CreatedAt:     createdAt,
		InvalidatedAt: invalidatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.PasswordResetRepository = (*PasswordResetRepository)(nil)
