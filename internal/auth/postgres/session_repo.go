// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
)

const sessionColumns = `id, token_hash, data, expires_at, created_at, updated_at`

// WebSessionRepository implements auth.WebSessionRepository using PostgreSQL.
// The session payload is stored as jsonb; user_id mirrors Data.UserID so
// sessions can be revoked per user.
type WebSessionRepository struct {
	pool poolIface
}

// NewWebSessionRepository creates a new WebSessionRepository.
func NewWebSessionRepository(pool poolIface) *WebSessionRepository {
	return &WebSessionRepository{pool: pool}
}

// Create stores a new web session.
func (r *WebSessionRepository) Create(ctx context.Context, session *auth.WebSession) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal session data").
			Wrap(err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO web_sessions (id, user_id, token_hash, data, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID.String(),
		userIDParam(session.Data.UserID),
		session.TokenHash,
		data,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			With("id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *WebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM web_sessions WHERE token_hash = $1`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Update overwrites the data and expiry of a session.
func (r *WebSessionRepository) Update(ctx context.Context, session *auth.WebSession) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "marshal session data").
			Wrap(err)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE web_sessions SET
			user_id = $2,
			data = $3,
			expires_at = $4,
			updated_at = $5
		WHERE id = $1
	`,
		session.ID.String(),
		userIDParam(session.Data.UserID),
		data,
		session.ExpiresAt,
		session.UpdatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "update web_session").
			With("id", session.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", session.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *WebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *WebSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete web_sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	// No ErrNotFound if no rows deleted - that's a valid state
	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM web_sessions WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired web_sessions").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func userIDParam(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// scanSession scans a single row into a WebSession.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row scanner) (*auth.WebSession, error) {
	var (
		idStr     string
		tokenHash string
		data      []byte
		expiresAt time.Time
		createdAt time.Time
		updatedAt time.Time
	)

	if err := row.Scan(&idStr, &tokenHash, &data, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	var sessionData auth.SessionData
	if err := json.Unmarshal(data, &sessionData); err != nil {
		return nil, oops.Code("SESSION_INVALID_DATA").
			With("operation", "unmarshal session data").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.WebSession{
		ID:        id,
		TokenHash: tokenHash,
		Data:      sessionData,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.WebSessionRepository = (*WebSessionRepository)(nil)
