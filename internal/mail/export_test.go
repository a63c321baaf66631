// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package mail

import (
	"net/smtp"
	"time"
)

// SetSend replaces the SMTP transport and removes retry delays.
func (m *SMTPMailer) SetSend(send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) {
	m.send = send
	m.retryBase = time.Millisecond
}

// SetNow replaces the mailer clock.
func (m *SMTPMailer) SetNow(now func() time.Time) {
	m.now = now
}
