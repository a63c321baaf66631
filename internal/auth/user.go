// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User is an account. Plaintext passwords and e-mail addresses are never
// stored on it.
type User struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	EmailHash    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User instance.
func NewUser(username, passwordHash string, emailHash *string) (*User, error) {
	if username == "" {
		return nil, oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if emailHash != nil && *emailHash == "" {
		return nil, oops.Code("USER_INVALID_EMAIL_HASH").Errorf("email hash cannot be empty when provided")
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		EmailHash:    emailHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateUsername or
	// ErrDuplicateEmail when a unique constraint rejects it.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmailHash retrieves a user by the hash of their e-mail address.
	// Returns ErrNotFound if no user has the given hash.
	GetByEmailHash(ctx context.Context, emailHash string) (*User, error)

	// Update writes the mutable fields (password hash, email hash) of a user.
	Update(ctx context.Context, user *User) error
}

// Registration is the raw input of a sign-up form.
type Registration struct {
	Username string `validate:"required,min=3,max=30,username"`
	Password string `validate:"required,min=8,max=128"`
	Email    string `validate:"omitempty,max=254,email"`
}

// Validator checks field shapes and reports per-field messages.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the username rule registered.
func NewValidator() *Validator {
	v := validator.New()
	// Registration cannot fail for a non-empty tag and non-nil func.
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool { //nolint:errcheck // see above
		return usernameRegex.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Registration validates a sign-up form.
func (v *Validator) Registration(r Registration) error {
	return v.check(r)
}

// Password validates a new password on its own.
func (v *Validator) Password(password string) error {
	return v.field("password", password, "required,min=8,max=128")
}

// Email validates an e-mail address on its own.
func (v *Validator) Email(email string) error {
	return v.field("email", email, "required,max=254,email")
}

func (v *Validator) check(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("AUTH_VALIDATOR_FAILED").Wrap(err)
	}

	fields := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = describe(fe.Tag(), fe.Param())
	}
	return errValidation(fields)
}

func (v *Validator) field(name string, value, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return oops.Code("AUTH_VALIDATOR_FAILED").Wrap(err)
	}
	return errValidation(FieldErrors{name: describe(verrs[0].Tag(), verrs[0].Param())})
}

func describe(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", param)
	case "max":
		return fmt.Sprintf("must be at most %s characters", param)
	case "email":
		return "must be a valid email address"
	case "username":
		return "must start with a letter and contain only letters, numbers, and underscores"
	default:
		return "is invalid"
	}
}
