// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/auth/authtest"
	"github.com/linkhoard/linkhoard/internal/auth/mocks"
	"github.com/linkhoard/linkhoard/pkg/errutil"
)

const dummyPassword = "linkhoard-dummy-password"

type serviceFixture struct {
	users    *authtest.UserRepository
	resets   *authtest.ResetRepository
	sessions *authtest.SessionRepository
	mailer   *authtest.Mailer
	ids      *auth.IdentifierHasher
	svc      *auth.Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		users:    authtest.NewUserRepository(),
		resets:   authtest.NewResetRepository(nil),
		sessions: authtest.NewSessionRepository(nil),
		mailer:   &authtest.Mailer{},
		ids:      auth.NewIdentifierHasher([]byte("identifier-key")),
	}
	hasher := authtest.FastHasher()
	resetSvc, err := auth.NewPasswordResetService(f.users, f.resets, hasher, auth.DefaultResetPolicy())
	require.NoError(t, err)

	f.svc, err = auth.NewService(auth.ServiceDeps{
		Users:       f.users,
		Resets:      resetSvc,
		Hasher:      hasher,
		Identifiers: f.ids,
		Mailer:      f.mailer,
		Sessions:    f.sessions,
	})
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) register(t *testing.T, username, password, email string) *auth.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), auth.Registration{
		Username: username, Password: password, Email: email,
	})
	require.NoError(t, err)
	return user
}

func TestNewService_NilDependencies(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	resets, err := auth.NewPasswordResetService(users, mocks.NewMockPasswordResetRepository(t),
		mocks.NewMockPasswordHasher(t), auth.DefaultResetPolicy())
	require.NoError(t, err)

	full := func() auth.ServiceDeps {
		return auth.ServiceDeps{
			Users:       users,
			Resets:      resets,
			Hasher:      mocks.NewMockPasswordHasher(t),
			Identifiers: auth.NewIdentifierHasher(nil),
			Mailer:      mocks.NewMockMailer(t),
		}
	}

	tests := []struct {
		name        string
		mutate      func(*auth.ServiceDeps)
		expectError string
	}{
		{"nil users", func(d *auth.ServiceDeps) { d.Users = nil }, "user repository is required"},
		{"nil resets", func(d *auth.ServiceDeps) { d.Resets = nil }, "reset service is required"},
		{"nil hasher", func(d *auth.ServiceDeps) { d.Hasher = nil }, "password hasher is required"},
		{"nil identifiers", func(d *auth.ServiceDeps) { d.Identifiers = nil }, "identifier hasher is required"},
		{"nil mailer", func(d *auth.ServiceDeps) { d.Mailer = nil }, "mailer is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			svc, err := auth.NewService(deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
		})
	}

	t.Run("dummy hash failure", func(t *testing.T) {
		deps := full()
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", dummyPassword).Return("", assert.AnError)
		deps.Hasher = hasher

		_, err := auth.NewService(deps)
		errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
	})
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("stores hashes only", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "correct horse", "Alice@Example.com")

		assert.Equal(t, "alice", user.Username)
		assert.NotContains(t, user.PasswordHash, "correct horse")
		require.NotNil(t, user.EmailHash)
		assert.Equal(t, f.ids.Hash("alice@example.com"), *user.EmailHash)

		stored, err := f.users.GetByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
	})

	t.Run("email is optional", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "bob", "password123", "")
		assert.Nil(t, user.EmailHash)
	})

	t.Run("duplicate username", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "password123", "")

		_, err := f.svc.Register(ctx, auth.Registration{Username: "Alice", Password: "password123"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeUserExists)
		assert.Equal(t, auth.FieldErrors{"username": "is already taken"}, auth.Fields(err))
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "password123", "shared@example.com")

		_, err := f.svc.Register(ctx, auth.Registration{
			Username: "bob", Password: "password123", Email: "SHARED@example.com",
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeUserExists)
		assert.Contains(t, auth.Fields(err), "email")
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, auth.Registration{Username: "x", Password: "short"})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		fields := auth.Fields(err)
		assert.Contains(t, fields, "username")
		assert.Contains(t, fields, "password")
	})

	t.Run("insert race maps to duplicate", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", mock.Anything).Return("hash", nil)
		svc := newMockService(t, users, hasher)

		users.On("GetByUsername", ctx, "carol").Return(nil, auth.ErrNotFound)
		users.On("Create", ctx, mock.AnythingOfType("*auth.User")).Return(auth.ErrDuplicateUsername)

		_, err := svc.Register(ctx, auth.Registration{Username: "carol", Password: "password123"})
		errutil.AssertErrorCode(t, err, auth.CodeUserExists)
	})

	t.Run("storage failure is not a user error", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", mock.Anything).Return("hash", nil)
		svc := newMockService(t, users, hasher)

		users.On("GetByUsername", ctx, "carol").Return(nil, assert.AnError)

		_, err := svc.Register(ctx, auth.Registration{Username: "carol", Password: "password123"})
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, auth.HasCode(err, auth.CodeUserExists))
	})
}

// newMockService builds a Service over mock users and hasher. The hasher
// must accept the dummy password hash made at construction.
func newMockService(t *testing.T, users *mocks.MockUserRepository, hasher *mocks.MockPasswordHasher) *auth.Service {
	t.Helper()
	resets, err := auth.NewPasswordResetService(users, mocks.NewMockPasswordResetRepository(t),
		hasher, auth.DefaultResetPolicy())
	require.NoError(t, err)

	svc, err := auth.NewService(auth.ServiceDeps{
		Users:       users,
		Resets:      resets,
		Hasher:      hasher,
		Identifiers: auth.NewIdentifierHasher(nil),
		Mailer:      mocks.NewMockMailer(t),
	})
	require.NoError(t, err)
	return svc
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		f := newServiceFixture(t)
		registered := f.register(t, "alice", "correct horse", "")

		user, err := f.svc.Login(ctx, "alice", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("unknown user and wrong password look the same", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "correct horse", "")

		_, wrongPw := f.svc.Login(ctx, "alice", "battery staple")
		_, unknown := f.svc.Login(ctx, "mallory", "correct horse")

		errutil.AssertErrorCode(t, wrongPw, auth.CodeInvalidCredentials)
		errutil.AssertErrorCode(t, unknown, auth.CodeInvalidCredentials)
		assert.Equal(t, wrongPw.Error(), unknown.Error())
		assert.Equal(t, auth.PublicMessage(wrongPw), auth.PublicMessage(unknown))
	})

	t.Run("unknown user still verifies a hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", dummyPassword).Return("dummy-hash", nil)
		svc := newMockService(t, users, hasher)

		users.On("GetByUsername", ctx, "ghost").Return(nil, auth.ErrNotFound)
		hasher.On("Verify", "pw", "dummy-hash").Return(false, nil).Once()

		_, err := svc.Login(ctx, "ghost", "pw")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("corrupt stored hash is an internal failure", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", dummyPassword).Return("dummy-hash", nil)
		svc := newMockService(t, users, hasher)

		user := &auth.User{ID: ulid.Make(), Username: "alice", PasswordHash: "garbage"}
		users.On("GetByUsername", ctx, "alice").Return(user, nil)
		hasher.On("Verify", "pw", "garbage").Return(false, assert.AnError)

		_, err := svc.Login(ctx, "alice", "pw")
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("upgrades weak hash", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", dummyPassword).Return("dummy-hash", nil)
		svc := newMockService(t, users, hasher)

		user := &auth.User{ID: ulid.Make(), Username: "alice", PasswordHash: "legacy"}
		users.On("GetByUsername", ctx, "alice").Return(user, nil)
		hasher.On("Verify", "pw", "legacy").Return(true, nil)
		hasher.On("NeedsUpgrade", "legacy").Return(true)
		hasher.On("Hash", "pw").Return("modern", nil)
		users.On("Update", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.PasswordHash == "modern"
		})).Return(nil)

		got, err := svc.Login(ctx, "alice", "pw")
		require.NoError(t, err)
		assert.Equal(t, "modern", got.PasswordHash)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		users := mocks.NewMockUserRepository(t)
		hasher := mocks.NewMockPasswordHasher(t)
		hasher.On("Hash", dummyPassword).Return("dummy-hash", nil)
		svc := newMockService(t, users, hasher)

		users.On("GetByUsername", ctx, "alice").Return(nil, assert.AnError)

		_, err := svc.Login(ctx, "alice", "pw")
		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, auth.HasCode(err, auth.CodeInvalidCredentials))
	})
}

func TestService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the current password", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "original1", "")

		err := f.svc.ChangePassword(ctx, user.ID, "not-it-at-all", "replacement1")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

		_, err = f.svc.Login(ctx, "alice", "original1")
		require.NoError(t, err)
	})

	t.Run("replaces the password", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "original1", "")

		require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "original1", "replacement1"))

		_, err := f.svc.Login(ctx, "alice", "original1")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		_, err = f.svc.Login(ctx, "alice", "replacement1")
		require.NoError(t, err)
	})

	t.Run("revokes outstanding reset tokens", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "original1", "alice@example.com")
		require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", "https://example.com/reset"))
		mail, ok := f.mailer.Last()
		require.True(t, ok)

		require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "original1", "replacement1"))

		valid, err := f.svc.ValidateResetToken(ctx, mail.Token)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("validates the new password", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "original1", "")

		err := f.svc.ChangePassword(ctx, user.ID, "original1", "short")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		assert.Contains(t, auth.Fields(err), "password")
	})
}

func TestService_UpdateEmail(t *testing.T) {
	ctx := context.Background()
	email := func(s string) *string { return &s }

	t.Run("sets and clears", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "password123", "")

		require.NoError(t, f.svc.UpdateEmail(ctx, user.ID, email("alice@example.com")))
		stored, err := f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.EmailHash)
		assert.Equal(t, f.ids.Hash("alice@example.com"), *stored.EmailHash)

		require.NoError(t, f.svc.UpdateEmail(ctx, user.ID, email("")))
		stored, err = f.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.EmailHash)

		require.NoError(t, f.svc.UpdateEmail(ctx, user.ID, nil))
	})

	t.Run("keeping the same address is allowed", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "password123", "alice@example.com")
		require.NoError(t, f.svc.UpdateEmail(ctx, user.ID, email("ALICE@example.com")))
	})

	t.Run("address owned by someone else", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "password123", "alice@example.com")
		bob := f.register(t, "bob", "password123", "")

		err := f.svc.UpdateEmail(ctx, bob.ID, email("alice@example.com"))
		errutil.AssertErrorCode(t, err, auth.CodeUserExists)
		assert.Equal(t, "An account with that email address already exists.", auth.PublicMessage(err))
	})

	t.Run("invalid address", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "password123", "")

		err := f.svc.UpdateEmail(ctx, user.ID, email("nope"))
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	const base = "https://links.example.com/reset"

	t.Run("full round trip revokes sessions", func(t *testing.T) {
		f := newServiceFixture(t)
		user := f.register(t, "alice", "original1", "alice@example.com")

		uid := user.ID
		sess, err := auth.NewWebSession("session-hash", auth.SessionData{UserID: &uid}, time.Now().Add(24*time.Hour))
		require.NoError(t, err)
		require.NoError(t, f.sessions.Create(ctx, sess))

		require.NoError(t, f.svc.RequestPasswordReset(ctx, "Alice@Example.com", base))
		mail, ok := f.mailer.Last()
		require.True(t, ok)
		assert.Equal(t, "Alice@Example.com", mail.To)
		assert.Equal(t, base, mail.ResetURLBase)
		assert.Len(t, mail.Token, 64)

		valid, err := f.svc.ValidateResetToken(ctx, mail.Token)
		require.NoError(t, err)
		assert.True(t, valid)

		require.NoError(t, f.svc.ResetPassword(ctx, mail.Token, "replacement1"))

		_, err = f.svc.Login(ctx, "alice", "replacement1")
		require.NoError(t, err)
		assert.Zero(t, f.sessions.Len())

		err = f.svc.ResetPassword(ctx, mail.Token, "another123")
		errutil.AssertErrorCode(t, err, auth.CodeResetTokenInvalid)
	})

	t.Run("unknown email sends nothing", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "original1", "alice@example.com")

		require.NoError(t, f.svc.RequestPasswordReset(ctx, "unknown@example.com", base))
		assert.Empty(t, f.mailer.Sent())
		assert.Zero(t, f.resets.Len())
	})

	t.Run("rate limit surfaces a typed error", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "original1", "alice@example.com")

		for range auth.DefaultResetMaxRequests {
			require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", base))
		}
		err := f.svc.RequestPasswordReset(ctx, "alice@example.com", base)
		errutil.AssertErrorCode(t, err, auth.CodeResetRateLimited)
		assert.Len(t, f.mailer.Sent(), auth.DefaultResetMaxRequests)
	})

	t.Run("invalid email is rejected before lookup", func(t *testing.T) {
		f := newServiceFixture(t)
		err := f.svc.RequestPasswordReset(ctx, "not an email", base)
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})

	t.Run("weak new password keeps the token", func(t *testing.T) {
		f := newServiceFixture(t)
		f.register(t, "alice", "original1", "alice@example.com")
		require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com", base))
		mail, _ := f.mailer.Last()

		err := f.svc.ResetPassword(ctx, mail.Token, "short")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)

		valid, err := f.svc.ValidateResetToken(ctx, mail.Token)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("mail failure", func(t *testing.T) {
		users := authtest.NewUserRepository()
		hasher := authtest.FastHasher()
		ids := auth.NewIdentifierHasher(nil)
		resets, err := auth.NewPasswordResetService(users, authtest.NewResetRepository(nil), hasher, auth.DefaultResetPolicy())
		require.NoError(t, err)
		mailer := mocks.NewMockMailer(t)
		svc, err := auth.NewService(auth.ServiceDeps{
			Users: users, Resets: resets, Hasher: hasher, Identifiers: ids, Mailer: mailer,
		})
		require.NoError(t, err)

		_, err = svc.Register(ctx, auth.Registration{Username: "alice", Password: "original1", Email: "a@example.com"})
		require.NoError(t, err)
		mailer.On("SendPasswordResetEmail", ctx, "a@example.com", mock.Anything, base).Return(assert.AnError)

		err = svc.RequestPasswordReset(ctx, "a@example.com", base)
		errutil.AssertErrorCode(t, err, "AUTH_RESET_MAIL_FAILED")
	})
}

func TestService_GetUser(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "alice", "password123", "")

	got, err := f.svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.svc.GetUser(context.Background(), ulid.Make())
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
