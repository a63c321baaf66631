// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import "time"

// SetNow replaces the service clock.
func (s *PasswordResetService) SetNow(now func() time.Time) {
	s.now = now
}

// SetNow replaces the codec clock.
func (c *TokenCodec) SetNow(now func() time.Time) {
	c.now = now
}
