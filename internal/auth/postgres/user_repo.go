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

// Constraint names from the users migration.
const (
	usernameConstraint  = "users_username_lower_key"
	emailHashConstraint = "users_email_hash_key"
)

const userColumns = `id, username, password_hash, email_hash, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, email_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Username,
		user.PasswordHash,
		user.EmailHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// GetByEmailHash retrieves a user by the hash of their e-mail address.
func (r *UserRepository) GetByEmailHash(ctx context.Context, emailHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email_hash = $1`, emailHash)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_HASH_FAILED").
			With("operation", "get user by email hash").
			Wrap(err)
	}
	return user, nil
}

// Update writes the password hash and e-mail hash of a user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			password_hash = $2,
			email_hash = $3,
			updated_at = $4
		WHERE id = $1
	`,
		user.ID.String(),
		user.PasswordHash,
		user.EmailHash,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// duplicateError maps a unique violation on users to a duplicate sentinel.
func duplicateError(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	sentinel := auth.ErrDuplicateUsername
	if constraint == emailHashConstraint {
		sentinel = auth.ErrDuplicateEmail
	}
	return oops.Code("USER_DUPLICATE").
		With("constraint", constraint).
		Wrap(sentinel)
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row scanner) (*auth.User, error) {
	var (
		idStr        string
		username     string
		passwordHash string
		emailHash    *string
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(&idStr, &username, &passwordHash, &emailHash, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		EmailHash:    emailHash,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
