// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package web

import (
	"net/http"
	"net/url"

	"github.com/oklog/ulid/v2"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/session"
	"github.com/linkhoard/linkhoard/pkg/errutil"
)

func (h *Handler) register(r *http.Request, s *session.Store) Result {
	ctx := r.Context()
	user, err := h.accounts.Register(ctx, auth.Registration{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Email:    r.PostFormValue("email"),
	})
	h.metrics.RecordRegistration(result(err))
	if err != nil {
		return h.failure(r, s, "registration failed", err, PathRegister)
	}

	if err := s.Create(ctx, user.ID, false); err != nil {
		return h.internalError(r, "session create failed", err)
	}
	return flashRedirect(r, s, auth.FlashSuccess, "Welcome to Linkhoard, "+user.Username+"!", PathHome)
}

func (h *Handler) login(r *http.Request, s *session.Store) Result {
	ctx := r.Context()
	user, err := h.accounts.Login(ctx, r.PostFormValue("username"), r.PostFormValue("password"))
	h.metrics.RecordLogin(result(err))
	if err != nil {
		return h.failure(r, s, "login failed", err, PathLogin)
	}

	if err := s.Create(ctx, user.ID, checked(r.PostFormValue("remember"))); err != nil {
		return h.internalError(r, "session create failed", err)
	}
	return flashRedirect(r, s, auth.FlashSuccess, "Welcome back, "+user.Username+".", PathHome)
}

func (h *Handler) logout(r *http.Request, s *session.Store) Result {
	if err := s.Destroy(r.Context()); err != nil {
		return h.internalError(r, "session destroy failed", err)
	}
	return flashRedirect(r, s, auth.FlashInfo, "You have been signed out.", PathLogin)
}

// forgotPassword answers every well-formed address the same way so the
// response does not reveal which addresses have accounts.
func (h *Handler) forgotPassword(r *http.Request, s *session.Store) Result {
	ctx := r.Context()
	err := h.accounts.RequestPasswordReset(ctx, r.PostFormValue("email"), h.resetURL)
	h.metrics.RecordPasswordReset(observability.StageRequest, result(err))

	switch {
	case auth.HasCode(err, auth.CodeValidation):
		return flashRedirect(r, s, auth.FlashError, "Please enter a valid email address.", PathForgot)
	case err != nil && !expected(err):
		errutil.LogError(ctx, h.logger, "password reset request failed", err)
	}
	return flashRedirect(r, s, auth.FlashInfo, forgotPasswordMsg, PathLogin)
}

type resetTokenState struct {
	Valid bool `json:"valid"`
}

func (h *Handler) validateReset(r *http.Request, _ *session.Store) Result {
	token := r.URL.Query().Get("token")
	if token == "" {
		return JSON{Code: http.StatusBadRequest, Body: resetTokenState{}}
	}

	valid, err := h.accounts.ValidateResetToken(r.Context(), token)
	if err != nil {
		return h.internalError(r, "reset token validation failed", err)
	}
	if !valid {
		return JSON{Code: http.StatusNotFound, Body: resetTokenState{}}
	}
	return JSON{Body: resetTokenState{Valid: true}}
}

func (h *Handler) resetPassword(r *http.Request, s *session.Store) Result {
	ctx := r.Context()
	token := r.PostFormValue("token")
	err := h.accounts.ResetPassword(ctx, token, r.PostFormValue("password"))
	h.metrics.RecordPasswordReset(observability.StageConsume, result(err))

	switch {
	case auth.HasCode(err, auth.CodeValidation):
		return h.failure(r, s, "password reset failed", err, PathReset+"?token="+url.QueryEscape(token))
	case err != nil:
		return h.failure(r, s, "password reset failed", err, PathForgot)
	}

	// Other sessions are revoked by the service; this browser signs in again too.
	if s.IsAuthenticated() {
		if err := s.Destroy(ctx); err != nil {
			return h.internalError(r, "session destroy failed", err)
		}
	}
	return flashRedirect(r, s, auth.FlashSuccess, "Your password has been reset. Please sign in.", PathLogin)
}

func (h *Handler) changePassword(r *http.Request, s *session.Store, userID ulid.ULID) Result {
	err := h.accounts.ChangePassword(r.Context(), userID,
		r.PostFormValue("current_password"), r.PostFormValue("new_password"))
	if err != nil {
		if auth.HasCode(err, auth.CodeInvalidCredentials) {
			return flashRedirect(r, s, auth.FlashError, "Your current password is incorrect.", PathAccount)
		}
		return h.failure(r, s, "password change failed", err, PathAccount)
	}
	return flashRedirect(r, s, auth.FlashSuccess, "Your password has been changed.", PathAccount)
}

func (h *Handler) changeEmail(r *http.Request, s *session.Store, userID ulid.ULID) Result {
	email := r.PostFormValue("email")
	if err := h.accounts.UpdateEmail(r.Context(), userID, &email); err != nil {
		return h.failure(r, s, "email change failed", err, PathAccount)
	}
	if email == "" {
		return flashRedirect(r, s, auth.FlashSuccess, "Your email address has been removed.", PathAccount)
	}
	return flashRedirect(r, s, auth.FlashSuccess, "Your email address has been updated.", PathAccount)
}

type sessionView struct {
	Authenticated bool        `json:"authenticated"`
	UserID        string      `json:"user_id,omitempty"`
	Username      string      `json:"username,omitempty"`
	Flash         *auth.Flash `json:"flash,omitempty"`
}

// sessionState reports who is signed in and hands over the pending flash.
func (h *Handler) sessionState(r *http.Request, s *session.Store) Result {
	ctx := r.Context()
	var view sessionView

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return h.internalError(r, "current user lookup failed", err)
	}
	if user != nil {
		view.Authenticated = true
		view.UserID = user.ID.String()
		view.Username = user.Username
	}
	view.Flash = s.ConsumeFlash(ctx)
	return JSON{Body: view}
}

func checked(v string) bool {
	switch v {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
