// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package auth provides identity primitives for Linkhoard: credential
// hashing, signed session tokens, server-side session records and the
// password reset flow.
//
// # Domain Types
//
// Domain types (User, WebSession, PasswordReset) should be created
// using their respective constructors:
//   - NewUser - creates a User with a username and password hash
//   - NewWebSession - creates a WebSession with validated token hash and expiry
//   - NewPasswordReset - creates a PasswordReset with validated user and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
//
// # Services
//
//   - Service - registration, login, password and e-mail changes, reset entry points
//   - PasswordResetService - reset token issuance, rate limiting and consumption
//   - Sweeper - background removal of expired sessions and reset requests
//
// Expected failures carry stable oops codes (CodeInvalidCredentials,
// CodeResetRateLimited, ...). Use HasCode to dispatch on them and
// PublicMessage for end-user wording. Any other error is a storage or
// infrastructure failure.
package auth
