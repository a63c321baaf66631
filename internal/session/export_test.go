// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import "time"

// SetNow replaces the manager clock.
func (m *Manager) SetNow(now func() time.Time) {
	m.now = now
}

// SetNow replaces the backend clock.
func (b *CookieBackend) SetNow(now func() time.Time) {
	b.now = now
}

// SetNow replaces the backend clock.
func (b *RecordBackend) SetNow(now func() time.Time) {
	b.now = now
}
