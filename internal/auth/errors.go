// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Duplicate sentinels returned by UserRepository.Create when a unique
// constraint rejects the insert.
var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

// Error codes for expected, recoverable outcomes. Callers dispatch on these
// with HasCode; everything else is an unexpected failure.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUserExists         = "AUTH_USER_EXISTS"
	CodeValidation         = "AUTH_VALIDATION_FAILED"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeResetTokenExpired  = "RESET_TOKEN_EXPIRED"
	CodeResetRateLimited   = "RESET_RATE_LIMITED"
)

// FieldErrors maps a form field to a human readable problem.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid username or password")
}

func errValidation(fields FieldErrors) error {
	return oops.Code(CodeValidation).Wrap(fields)
}

func errUserExists(field, message string) error {
	return oops.Code(CodeUserExists).
		With("field", field).
		Wrap(FieldErrors{field: message})
}

func errResetTokenInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("reset token is invalid or has expired")
}

func errResetTokenExpired() error {
	return oops.Code(CodeResetTokenExpired).Errorf("reset token is invalid or has expired")
}

// HasCode reports whether err carries the given oops error code.
func HasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}

// Fields extracts per-field messages from validation and duplicate errors.
// Returns nil when err carries none.
func Fields(err error) FieldErrors {
	var fields FieldErrors
	if errors.As(err, &fields) {
		return fields
	}
	return nil
}

// PublicMessage returns wording that is safe to show an end user. Unknown
// and expired reset tokens share one message, as do unknown users and wrong
// passwords.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case HasCode(err, CodeInvalidCredentials):
		return "Invalid username or password."
	case HasCode(err, CodeResetTokenInvalid), HasCode(err, CodeResetTokenExpired):
		return "This password reset link is invalid or has expired."
	case HasCode(err, CodeResetRateLimited):
		return "Too many password reset requests. Please try again later."
	case HasCode(err, CodeUserExists):
		if _, ok := Fields(err)["email"]; ok {
			return "An account with that email address already exists."
		}
		return "That username is already taken."
	case HasCode(err, CodeValidation):
		return "Please correct the highlighted fields."
	default:
		return "Something went wrong. Please try again."
	}
}
