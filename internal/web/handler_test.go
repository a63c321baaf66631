// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package web_test

import (
	"encoding/json"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/observability"
	"github.com/linkhoard/linkhoard/internal/web"
)

var _ = Describe("Account handlers", func() {
	var (
		env *testEnv
		b   *browser
	)

	BeforeEach(func() {
		env = newTestEnv()
		b = env.newBrowser()
	})

	Describe("registration", func() {
		It("signs the new user in with a welcome flash", func() {
			resp := b.register("alice", "correct-horse", "alice@example.com")
			Expect(resp).To(beRedirectTo(web.PathHome))

			s := b.state()
			Expect(s.Authenticated).To(BeTrue())
			Expect(s.Username).To(Equal("alice"))
			Expect(s.Flash).To(Equal(&auth.Flash{Type: auth.FlashSuccess, Message: "Welcome to Linkhoard, alice!"}))
			Expect(testutil.ToFloat64(env.metrics.RegistrationsTotal.WithLabelValues(observability.ResultSuccess))).To(Equal(1.0))
		})

		It("starts a browser session that has no expiry on the cookie", func() {
			resp := b.register("alice", "correct-horse", "")
			c := sessionCookie(resp)
			Expect(c).NotTo(BeNil())
			Expect(c.HttpOnly).To(BeTrue())
			Expect(c.MaxAge).To(BeZero())
			Expect(c.Expires.IsZero()).To(BeTrue())
		})

		It("reports a taken username", func() {
			b.register("alice", "correct-horse", "")
			other := env.newBrowser()

			resp := other.register("ALICE", "another-pass", "")
			Expect(resp).To(beRedirectTo(web.PathRegister))

			s := other.state()
			Expect(s.Authenticated).To(BeFalse())
			Expect(s.Flash.Type).To(Equal(auth.FlashError))
			Expect(s.Flash.Message).To(Equal("That username is already taken."))
			Expect(testutil.ToFloat64(env.metrics.RegistrationsTotal.WithLabelValues(observability.ResultFailure))).To(Equal(1.0))
		})

		It("reports invalid fields", func() {
			resp := b.register("al", "short", "")
			Expect(resp).To(beRedirectTo(web.PathRegister))

			s := b.state()
			Expect(s.Flash.Type).To(Equal(auth.FlashError))
			Expect(s.Flash.Message).To(HavePrefix("Please correct the highlighted fields."))
			Expect(s.Flash.Message).To(ContainSubstring("password"))
		})
	})

	Describe("login and logout", func() {
		BeforeEach(func() {
			env.newBrowser().register("alice", "correct-horse", "alice@example.com")
		})

		It("signs in and shows the flash exactly once", func() {
			Expect(b.login("alice", "correct-horse", false)).To(beRedirectTo(web.PathHome))

			first := b.state()
			Expect(first.Authenticated).To(BeTrue())
			Expect(first.Flash).NotTo(BeNil())

			second := b.state()
			Expect(second.Authenticated).To(BeTrue())
			Expect(second.Flash).To(BeNil())
			Expect(testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues(observability.ResultSuccess))).To(Equal(1.0))
		})

		It("issues a persistent cookie when remembered", func() {
			c := sessionCookie(b.login("alice", "correct-horse", true))
			Expect(c).NotTo(BeNil())
			Expect(c.MaxAge).To(BeNumerically(">", 0))
		})

		It("gives the same answer for unknown users and wrong passwords", func() {
			b.login("alice", "wrong-password", false)
			wrong := b.state()

			b.login("mallory", "whatever", false)
			unknown := b.state()

			Expect(wrong.Flash).To(Equal(unknown.Flash))
			Expect(wrong.Flash.Message).To(Equal("Invalid username or password."))
			Expect(wrong.Authenticated).To(BeFalse())
			Expect(testutil.ToFloat64(env.metrics.LoginsTotal.WithLabelValues(observability.ResultFailure))).To(Equal(2.0))
		})

		It("replaces the prior session on a second login", func() {
			b.login("alice", "correct-horse", false)
			b.state()
			Expect(env.sessions.Len()).To(Equal(2)) // the registering browser and this one

			b.login("alice", "correct-horse", false)
			Expect(env.sessions.Len()).To(Equal(2))
		})

		It("signs out and clears the server record", func() {
			b.login("alice", "correct-horse", false)
			b.state()
			before := env.sessions.Len()

			Expect(b.post(web.PathLogout, nil)).To(beRedirectTo(web.PathLogin))

			s := b.state()
			Expect(s.Authenticated).To(BeFalse())
			Expect(s.Flash).To(Equal(&auth.Flash{Type: auth.FlashInfo, Message: "You have been signed out."}))
			Expect(env.sessions.Len()).To(Equal(before - 1))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			env.newBrowser().register("alice", "correct-horse", "alice@example.com")
		})

		requestReset := func(email string) *http.Response {
			return b.post(web.PathForgot, url.Values{"email": {email}})
		}

		It("answers known and unknown addresses alike", func() {
			Expect(requestReset("alice@example.com")).To(beRedirectTo(web.PathLogin))
			known := b.state()

			Expect(requestReset("nobody@example.com")).To(beRedirectTo(web.PathLogin))
			unknown := b.state()

			Expect(known.Flash).To(Equal(unknown.Flash))
			Expect(env.mailer.Sent()).To(HaveLen(1))
			Expect(env.mailer.Sent()[0].ResetURLBase).To(Equal(resetURL))
		})

		It("answers the same when rate limited", func() {
			for range auth.DefaultResetPolicy().MaxRequests + 1 {
				Expect(requestReset("alice@example.com")).To(beRedirectTo(web.PathLogin))
			}
			Expect(env.mailer.Sent()).To(HaveLen(auth.DefaultResetPolicy().MaxRequests))
			Expect(testutil.ToFloat64(env.metrics.PasswordResetsTotal.WithLabelValues(
				observability.StageRequest, observability.ResultRejected))).To(Equal(1.0))
		})

		It("rejects a malformed address", func() {
			Expect(requestReset("not-an-email")).To(beRedirectTo(web.PathForgot))
			Expect(b.state().Flash.Type).To(Equal(auth.FlashError))
		})

		It("validates and consumes a token once", func() {
			requestReset("alice@example.com")
			mail, ok := env.mailer.Last()
			Expect(ok).To(BeTrue())
			token := mail.Token

			resp := b.get(web.PathReset + "?token=" + url.QueryEscape(token))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var body struct{ Valid bool }
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Valid).To(BeTrue())

			resp = b.post(web.PathReset, url.Values{"token": {token}, "password": {"brand-new-pass"}})
			Expect(resp).To(beRedirectTo(web.PathLogin))
			Expect(b.state().Flash.Type).To(Equal(auth.FlashSuccess))

			Expect(b.get(web.PathReset + "?token=" + url.QueryEscape(token)).StatusCode).To(Equal(http.StatusNotFound))

			resp = b.post(web.PathReset, url.Values{"token": {token}, "password": {"another-pass"}})
			Expect(resp).To(beRedirectTo(web.PathForgot))
			Expect(b.state().Flash.Message).To(Equal("This password reset link is invalid or has expired."))

			Expect(b.login("alice", "brand-new-pass", false)).To(beRedirectTo(web.PathHome))
		})

		It("revokes existing sessions on reset", func() {
			signedIn := env.newBrowser()
			signedIn.login("alice", "correct-horse", false)
			Expect(signedIn.state().Authenticated).To(BeTrue())

			requestReset("alice@example.com")
			mail, _ := env.mailer.Last()
			b.post(web.PathReset, url.Values{"token": {mail.Token}, "password": {"brand-new-pass"}})

			Expect(signedIn.state().Authenticated).To(BeFalse())
		})

		It("keeps the token when the new password is invalid", func() {
			requestReset("alice@example.com")
			mail, _ := env.mailer.Last()

			resp := b.post(web.PathReset, url.Values{"token": {mail.Token}, "password": {"short"}})
			Expect(resp).To(beRedirectTo(web.PathReset + "?token=" + url.QueryEscape(mail.Token)))
			Expect(b.get(web.PathReset + "?token=" + url.QueryEscape(mail.Token)).StatusCode).To(Equal(http.StatusOK))
		})

		It("requires a token to validate", func() {
			Expect(b.get(web.PathReset).StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("account changes", func() {
		It("sends anonymous visitors to the login form", func() {
			resp := b.post(web.PathPassword, url.Values{"current_password": {"x"}, "new_password": {"y"}})
			Expect(resp).To(beRedirectTo(web.PathLogin))
			Expect(b.state().Flash.Message).To(Equal("Please sign in first."))
		})

		Context("when signed in", func() {
			BeforeEach(func() {
				b.register("alice", "correct-horse", "alice@example.com")
				b.state()
			})

			It("changes the password after checking the current one", func() {
				resp := b.post(web.PathPassword, url.Values{"current_password": {"nope"}, "new_password": {"brand-new-pass"}})
				Expect(resp).To(beRedirectTo(web.PathAccount))
				Expect(b.state().Flash.Message).To(Equal("Your current password is incorrect."))

				resp = b.post(web.PathPassword, url.Values{"current_password": {"correct-horse"}, "new_password": {"brand-new-pass"}})
				Expect(resp).To(beRedirectTo(web.PathAccount))
				Expect(b.state().Flash.Type).To(Equal(auth.FlashSuccess))

				Expect(env.newBrowser().login("alice", "brand-new-pass", false)).To(beRedirectTo(web.PathHome))
			})

			It("updates and removes the e-mail address", func() {
				resp := b.post(web.PathEmail, url.Values{"email": {"new@example.com"}})
				Expect(resp).To(beRedirectTo(web.PathAccount))
				Expect(b.state().Flash.Message).To(Equal("Your email address has been updated."))

				b.post(web.PathForgot, url.Values{"email": {"new@example.com"}})
				Expect(env.mailer.Sent()).To(HaveLen(1))

				b.post(web.PathEmail, url.Values{"email": {""}})
				Expect(b.state().Flash.Message).To(Equal("Your email address has been removed."))

				b.post(web.PathForgot, url.Values{"email": {"new@example.com"}})
				Expect(env.mailer.Sent()).To(HaveLen(1))
			})

			It("refuses an address owned by someone else", func() {
				env.newBrowser().register("bob", "correct-horse", "bob@example.com")

				b.post(web.PathEmail, url.Values{"email": {"BOB@example.com"}})
				Expect(b.state().Flash.Message).To(Equal("An account with that email address already exists."))
			})
		})
	})

	Describe("session probe", func() {
		It("reports an anonymous visitor without setting a cookie", func() {
			resp := b.get(web.PathSession)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(sessionCookie(resp)).To(BeNil())
			Expect(env.sessions.Len()).To(BeZero())
		})

		It("treats a forged cookie as no session and clears it", func() {
			u, err := url.Parse(env.server.URL)
			Expect(err).NotTo(HaveOccurred())
			b.client.Jar.SetCookies(u, []*http.Cookie{{Name: "linkhoard_session", Value: "forged"}})

			resp := b.get(web.PathSession)
			c := sessionCookie(resp)
			Expect(c).NotTo(BeNil())
			Expect(c.MaxAge).To(BeNumerically("<", 0))
		})
	})

	It("rejects unknown methods", func() {
		Expect(b.get(web.PathLogin).StatusCode).To(Equal(http.StatusMethodNotAllowed))
	})
})

var _ = Describe("NewHandler", func() {
	It("requires its collaborators", func() {
		_, err := web.NewHandler(web.Deps{})
		Expect(err).To(HaveOccurred())
		Expect(auth.HasCode(err, "WEB_HANDLER_INVALID")).To(BeTrue())
	})
})
