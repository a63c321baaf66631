// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/linkhoard/linkhoard/internal/auth"
)

func TestFieldErrors(t *testing.T) {
	fields := auth.FieldErrors{"username": "is required", "email": "must be a valid email address"}
	assert.Equal(t, "email: must be a valid email address; username: is required", fields.Error())
}

func TestHasCode(t *testing.T) {
	coded := oops.Code(auth.CodeInvalidCredentials).Errorf("nope")

	assert.True(t, auth.HasCode(coded, auth.CodeInvalidCredentials))
	assert.False(t, auth.HasCode(coded, auth.CodeUserExists))
	assert.False(t, auth.HasCode(errors.New("plain"), auth.CodeInvalidCredentials))
	assert.False(t, auth.HasCode(nil, auth.CodeInvalidCredentials))

	wrapped := oops.With("operation", "login").Wrap(coded)
	assert.True(t, auth.HasCode(wrapped, auth.CodeInvalidCredentials), "context wrapping keeps the code")
}

func TestFields(t *testing.T) {
	err := oops.Code(auth.CodeValidation).Wrap(auth.FieldErrors{"password": "is required"})
	assert.Equal(t, auth.FieldErrors{"password": "is required"}, auth.Fields(err))
	assert.Nil(t, auth.Fields(errors.New("plain")))
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("x"), "Invalid username or password."},
		{"invalid token", oops.Code(auth.CodeResetTokenInvalid).Errorf("x"), "This password reset link is invalid or has expired."},
		{"expired token", oops.Code(auth.CodeResetTokenExpired).Errorf("x"), "This password reset link is invalid or has expired."},
		{"rate limited", oops.Code(auth.CodeResetRateLimited).Errorf("x"), "Too many password reset requests. Please try again later."},
		{
			"duplicate username",
			oops.Code(auth.CodeUserExists).Wrap(auth.FieldErrors{"username": "is already taken"}),
			"That username is already taken.",
		},
		{
			"duplicate email",
			oops.Code(auth.CodeUserExists).Wrap(auth.FieldErrors{"email": "is already registered"}),
			"An account with that email address already exists.",
		},
		{"validation", oops.Code(auth.CodeValidation).Wrap(auth.FieldErrors{"x": "y"}), "Please correct the highlighted fields."},
		{"unexpected", errors.New("connection refused"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.PublicMessage(tt.err))
		})
	}
}
