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

// Mailer delivers password reset e-mails.
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, to, rawToken, resetURLBase string) error
}

// SessionRevoker removes every server-side session of a user.
type SessionRevoker interface {
	DeleteByUser(ctx context.Context, userID ulid.ULID) error
}

// ServiceDeps are the collaborators of Service. Sessions and Logger are
// optional.
type ServiceDeps struct {
	Users       UserRepository
	Resets      *PasswordResetService
	Hasher      PasswordHasher
	Identifiers *IdentifierHasher
	Mailer      Mailer
	Sessions    SessionRevoker
	Logger      *slog.Logger
}

// Service provides account operations: registration, login, credential
// changes and the public side of the password reset flow.
type Service struct {
	users       UserRepository
	resets      *PasswordResetService
	hasher      PasswordHasher
	identifiers *IdentifierHasher
	mailer      Mailer
	sessions    SessionRevoker
	validate    *Validator
	logger      *slog.Logger

	// dummyHash is verified against when a username is unknown so a miss
	// costs the same as a wrong password.
	dummyHash string
}

// NewService creates a new Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	case deps.Resets == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("reset service is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Identifiers == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("identifier hasher is required")
	case deps.Mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dummy, err := deps.Hasher.Hash("linkhoard-dummy-password")
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("operation", "hash dummy password").
			Wrap(err)
	}

	return &Service{
		users:       deps.Users,
		resets:      deps.Resets,
		hasher:      deps.Hasher,
		identifiers: deps.Identifiers,
		mailer:      deps.Mailer,
		sessions:    deps.Sessions,
		validate:    NewValidator(),
		logger:      logger,
		dummyHash:   dummy,
	}, nil
}

// Register creates an account. The e-mail address is optional and only its
// hash is stored.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	if err := s.validate.Registration(reg); err != nil {
		return nil, err
	}

	_, err := s.users.GetByUsername(ctx, reg.Username)
	switch {
	case err == nil:
		return nil, errUserExists("username", "is already taken")
	case !errors.Is(err, ErrNotFound):
		return nil, oops.With("operation", "get user by username").Wrap(err)
	}

	var emailHash *string
	if reg.Email != "" {
		h := s.identifiers.Hash(reg.Email)
		_, err := s.users.GetByEmailHash(ctx, h)
		switch {
		case err == nil:
			return nil, errUserExists("email", "is already registered")
		case !errors.Is(err, ErrNotFound):
			return nil, oops.With("operation", "get user by email hash").Wrap(err)
		}
		emailHash = &h
	}

	passwordHash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(reg.Username, passwordHash, emailHash)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "new user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return nil, errUserExists("username", "is already taken")
		case errors.Is(err, ErrDuplicateEmail):
			return nil, errUserExists("email", "is already registered")
		}
		return nil, oops.With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Login verifies a username and password and returns the user.
// Unknown usernames and wrong passwords produce the same error after the
// same amount of hashing work.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.With("operation", "get user by username").Wrap(lookupErr)
		}
		targetHash = s.dummyHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify so both paths do the same work.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, errInvalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, errInvalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return user, nil
}

// upgradeHash rehashes with the current parameters. Login succeeds
// regardless of the outcome.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "rehash",
			"user_id", user.ID.String(),
			"error", err.Error())
		return
	}

	updated := *user
	updated.PasswordHash = newHash
	updated.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, &updated); err != nil {
		s.logger.WarnContext(ctx, "best-effort password rehash failed",
			"operation", "update_user",
			"user_id", user.ID.String(),
			"error", err.Error())
		return
	}
	*user = updated
}

// ChangePassword replaces the password after re-verifying the current one.
// Outstanding reset tokens of the user are removed.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error {
	if err := s.validate.Password(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return oops.With("operation", "get user by id").With("user_id", userID.String()).Wrap(err)
	}

	valid, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !valid {
		return errInvalidCredentials()
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user.PasswordHash = newHash
	user.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return oops.With("operation", "update user").With("user_id", userID.String()).Wrap(err)
	}

	s.resets.Revoke(ctx, userID)
	return nil
}

// UpdateEmail stores the hash of a new e-mail address, or clears it when
// newEmail is nil or empty.
func (s *Service) UpdateEmail(ctx context.Context, userID ulid.ULID, newEmail *string) error {
	var emailHash *string
	if newEmail != nil && *newEmail != "" {
		if err := s.validate.Email(*newEmail); err != nil {
			return err
		}
		h := s.identifiers.Hash(*newEmail)
		emailHash = &h
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return oops.With("operation", "get user by id").With("user_id", userID.String()).Wrap(err)
	}

	if emailHash != nil {
		owner, err := s.users.GetByEmailHash(ctx, *emailHash)
		switch {
		case err == nil && owner.ID != user.ID:
			return errUserExists("email", "is already registered")
		case err != nil && !errors.Is(err, ErrNotFound):
			return oops.With("operation", "get user by email hash").Wrap(err)
		}
	}

	user.EmailHash = emailHash
	user.UpdatedAt = time.Now()
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return errUserExists("email", "is already registered")
		}
		return oops.With("operation", "update user").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account registered
// with email and mails a link built from resetURLBase. Unknown addresses
// return nil without sending anything.
func (s *Service) RequestPasswordReset(ctx context.Context, email, resetURLBase string) error {
	if err := s.validate.Email(email); err != nil {
		return err
	}

	token, err := s.resets.Request(ctx, s.identifiers.Hash(email))
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, email, token, resetURLBase); err != nil {
		return oops.Code("AUTH_RESET_MAIL_FAILED").
			With("operation", "send password reset email").
			Wrap(err)
	}
	return nil
}

// ValidateResetToken reports whether a reset token can still be used.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	return s.resets.Validate(ctx, token)
}

// ResetPassword consumes a reset token and sets a new password. Server-side
// sessions of the user are revoked afterwards.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.validate.Password(newPassword); err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, token, newPassword)
	if err != nil {
		return err
	}

	if s.sessions != nil {
		if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
			s.logger.WarnContext(ctx, "best-effort session revocation failed",
				"operation", "delete_sessions",
				"user_id", userID.String(),
				"error", err.Error())
		}
	}
	return nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, userID ulid.ULID) (*User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, oops.With("operation", "get user by id").With("user_id", userID.String()).Wrap(err)
	}
	return user, nil
}
