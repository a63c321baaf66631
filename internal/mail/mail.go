// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package mail delivers password reset e-mails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// ResetLink appends the token to resetURLBase as the "token" query parameter.
func ResetLink(resetURLBase, token string) (string, error) {
	u, err := url.Parse(resetURLBase)
	if err != nil {
		return "", oops.Code("MAIL_INVALID_RESET_URL").With("url", resetURLBase).Wrap(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", oops.Code("MAIL_INVALID_RESET_URL").With("url", resetURLBase).Errorf("reset URL must be absolute")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string // empty disables authentication
	Password string
	From     string
	Retries  uint64
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text reset mail through an SMTP relay. Failed sends
// are retried with exponential backoff.
type SMTPMailer struct {
	cfg       SMTPConfig
	send      sendFunc
	retryBase time.Duration
	now       func() time.Time
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, retryBase: 200 * time.Millisecond, now: time.Now}, nil
}

// SendPasswordResetEmail mails the reset link to to.
func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, rawToken, resetURLBase string) error {
	link, err := ResetLink(resetURLBase, rawToken)
	if err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return oops.Code("MAIL_INVALID_RECIPIENT").Errorf("recipient contains a line break")
	}

	msg := m.message(to, link)
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))

	var smtpAuth smtp.Auth
	if m.cfg.Username != "" {
		smtpAuth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	attempts := 0
	backoff := retry.WithMaxRetries(m.cfg.Retries, retry.NewExponential(m.retryBase))
	err = retry.Do(ctx, backoff, func(context.Context) error {
		attempts++
		if err := m.send(addr, smtpAuth, m.cfg.From, []string{to}, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("addr", addr).
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}

func (m *SMTPMailer) message(to, link string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Reset your Linkhoard password\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Someone asked to reset the password of your Linkhoard account.\r\n")
	b.WriteString("Open the link below to choose a new one:\r\n\r\n")
	b.WriteString(link + "\r\n\r\n")
	b.WriteString("The link expires soon and works once. If you did not ask for this, ignore this e-mail.\r\n")
	return b.Bytes()
}

// LogMailer logs reset links instead of sending them. For development only:
// the log contains a usable token.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default().
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendPasswordResetEmail logs the reset link. The recipient is not logged.
func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, _, rawToken, resetURLBase string) error {
	link, err := ResetLink(resetURLBase, rawToken)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "password reset email", "link", link)
	return nil
}

var (
	_ auth.Mailer = (*SMTPMailer)(nil)
	_ auth.Mailer = (*LogMailer)(nil)
)
