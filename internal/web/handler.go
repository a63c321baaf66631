// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package web exposes the account and session operations over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/session"
	"github.com/linkhoard/linkhoard/pkg/errutil"
)

// Paths handlers redirect to.
const (
	PathHome          = "/"
	PathLogin         = "/login"
	PathRegister      = "/register"
	PathForgot        = "/password/forgot"
	PathReset         = "/password/reset"
	PathAccount       = "/account"
	PathSession       = "/session"
	PathLogout        = "/logout"
	PathPassword      = "/account/password"
	PathEmail         = "/account/email"
	forgotPasswordMsg = "If an account exists for that address, a reset link is on its way."
)

// Accounts is the account API the handlers drive.
type Accounts interface {
	Register(ctx context.Context, reg auth.Registration) (*auth.User, error)
	Login(ctx context.Context, username, password string) (*auth.User, error)
	ChangePassword(ctx context.Context, userID ulid.ULID, currentPassword, newPassword string) error
	UpdateEmail(ctx context.Context, userID ulid.ULID, newEmail *string) error
	RequestPasswordReset(ctx context.Context, email, resetURLBase string) error
	ValidateResetToken(ctx context.Context, token string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

var _ Accounts = (*auth.Service)(nil)

// Deps are the collaborators of Handler. Metrics and Logger are optional.
type Deps struct {
	Accounts Accounts
	Sessions *session.Manager
	ResetURL string // absolute URL of the reset form, mailed with the token
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Handler serves the account routes.
type Handler struct {
	accounts Accounts
	sessions *session.Manager
	resetURL string
	metrics  *observability.Metrics
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates a Handler with its routes registered.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("accounts service is required")
	case deps.Sessions == nil:
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("session manager is required")
	case deps.ResetURL == "":
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("reset URL is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		resetURL: deps.ResetURL,
		metrics:  deps.Metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	h.routes()
	return h, nil
}

func (h *Handler) routes() {
	h.handle("POST "+PathRegister, h.register)
	h.handle("POST "+PathLogin, h.login)
	h.handle("POST "+PathLogout, h.logout)
	h.handle("POST "+PathForgot, h.forgotPassword)
	h.handle("GET "+PathReset, h.validateReset)
	h.handle("POST "+PathReset, h.resetPassword)
	h.handle("POST "+PathPassword, h.requireUser(h.changePassword))
	h.handle("POST "+PathEmail, h.requireUser(h.changeEmail))
	h.handle("GET "+PathSession, h.sessionState)
}

// ServeHTTP resolves the session and dispatches to the matching route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.sessions.Middleware(h.mux).ServeHTTP(w, r)
}

type handlerFunc func(r *http.Request, s *session.Store) Result

func (h *Handler) handle(pattern string, fn handlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		fn(r, session.FromContext(r.Context())).Write(w, r)
	})
}

type userHandlerFunc func(r *http.Request, s *session.Store, userID ulid.ULID) Result

// requireUser sends anonymous visitors to the login form.
func (h *Handler) requireUser(fn userHandlerFunc) handlerFunc {
	return func(r *http.Request, s *session.Store) Result {
		userID, ok := s.CurrentUserID()
		if !ok {
			s.SetFlash(r.Context(), auth.FlashInfo, "Please sign in first.")
			return Redirect{To: PathLogin}
		}
		return fn(r, s, userID)
	}
}

// flashRedirect sets a flash and redirects.
func flashRedirect(r *http.Request, s *session.Store, typ auth.FlashType, msg, to string) Result {
	s.SetFlash(r.Context(), typ, msg)
	return Redirect{To: to}
}

// failure reports err to the user. Unexpected errors are logged and shown
// as a generic message.
func (h *Handler) failure(r *http.Request, s *session.Store, msg string, err error, to string) Result {
	if !expected(err) {
		errutil.LogError(r.Context(), h.logger, msg, err)
	}
	return flashRedirect(r, s, auth.FlashError, publicMessage(err), to)
}

// publicMessage adds field details to validation errors.
func publicMessage(err error) string {
	msg := auth.PublicMessage(err)
	if fields := auth.Fields(err); len(fields) > 0 && auth.HasCode(err, auth.CodeValidation) {
		msg += " (" + fields.Error() + ")"
	}
	return msg
}

// internalError logs err and answers 500.
func (h *Handler) internalError(r *http.Request, msg string, err error) Result {
	errutil.LogError(r.Context(), h.logger, msg, err)
	return Status{Code: http.StatusInternalServerError}
}

func expected(err error) bool {
	for _, code := range []string{
		auth.CodeInvalidCredentials,
		auth.CodeUserExists,
		auth.CodeValidation,
		auth.CodeResetTokenInvalid,
		auth.CodeResetTokenExpired,
		auth.CodeResetRateLimited,
	} {
		if auth.HasCode(err, code) {
			return true
		}
	}
	return false
}

func result(err error) string {
	switch {
	case err == nil:
		return observability.ResultSuccess
	case auth.HasCode(err, auth.CodeResetRateLimited):
		return observability.ResultRejected
	case expected(err):
		return observability.ResultFailure
	default:
		return observability.ResultError
	}
}
