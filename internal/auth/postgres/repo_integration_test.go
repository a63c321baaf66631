// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhoard/linkhoard/internal/auth"
	"github.com/linkhoard/linkhoard/internal/auth/postgres"
)

// createTestUser inserts a user and removes it when the test ends.
func createTestUser(ctx context.Context, t *testing.T, username string, emailHash *string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(username, "testhash", emailHash)
	require.NoError(t, err)
	require.NoError(t, postgres.NewUserRepository(testPool).Create(ctx, user))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
	})
	return user
}

func TestUserRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewUserRepository(testPool)

	t.Run("round trip", func(t *testing.T) {
		emailHash := "hash-roundtrip"
		user := createTestUser(ctx, t, "RoundTrip", &emailHash)

		byName, err := repo.GetByUsername(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)
		assert.Equal(t, "RoundTrip", byName.Username)

		byEmail, err := repo.GetByEmailHash(ctx, emailHash)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("duplicate username differs only in case", func(t *testing.T) {
		createTestUser(ctx, t, "dupe_name", nil)
		other, err := auth.NewUser("DUPE_NAME", "testhash", nil)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.Create(ctx, other), auth.ErrDuplicateUsername)
	})

	t.Run("duplicate email hash", func(t *testing.T) {
		emailHash := "hash-dupe"
		createTestUser(ctx, t, "dupe_email_a", &emailHash)
		other, err := auth.NewUser("dupe_email_b", "testhash", &emailHash)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.Create(ctx, other), auth.ErrDuplicateEmail)
	})

	t.Run("many users without email", func(t *testing.T) {
		createTestUser(ctx, t, "no_email_a", nil)
		createTestUser(ctx, t, "no_email_b", nil)
	})

	t.Run("update clears email hash", func(t *testing.T) {
		emailHash := "hash-clear"
		user := createTestUser(ctx, t, "clear_email", &emailHash)

		user.EmailHash = nil
		user.PasswordHash = "rotated"
		user.UpdatedAt = time.Now()
		require.NoError(t, repo.Update(ctx, user))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.EmailHash)
		assert.Equal(t, "rotated", stored.PasswordHash)

		_, err = repo.GetByEmailHash(ctx, emailHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestWebSessionRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewWebSessionRepository(testPool)
	user := createTestUser(ctx, t, "session_owner", nil)
	uid := user.ID

	newSession := func(t *testing.T, data auth.SessionData, expiresAt time.Time) *auth.WebSession {
		t.Helper()
		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		s, err := auth.NewWebSession(hash, data, expiresAt)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, s))
		return s
	}

	t.Run("create, update and read back", func(t *testing.T) {
		s := newSession(t, auth.SessionData{}, time.Now().Add(time.Hour))

		s.Data = auth.SessionData{
			UserID:       &uid,
			KeepSignedIn: true,
			Flash:        &auth.Flash{Type: auth.FlashSuccess, Message: "Welcome back"},
		}
		s.UpdatedAt = time.Now()
		require.NoError(t, repo.Update(ctx, s))

		stored, err := repo.GetByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, s.Data, stored.Data)
	})

	t.Run("delete by user keeps anonymous sessions", func(t *testing.T) {
		owned := newSession(t, auth.SessionData{UserID: &uid}, time.Now().Add(time.Hour))
		anon := newSession(t, auth.SessionData{}, time.Now().Add(time.Hour))

		require.NoError(t, repo.DeleteByUser(ctx, uid))

		_, err := repo.GetByTokenHash(ctx, owned.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByTokenHash(ctx, anon.TokenHash)
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, anon.ID))
	})

	t.Run("delete expired", func(t *testing.T) {
		expired := newSession(t, auth.SessionData{}, time.Now().Add(-time.Minute))
		live := newSession(t, auth.SessionData{}, time.Now().Add(time.Hour))

		n, err := repo.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = repo.GetByTokenHash(ctx, expired.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByTokenHash(ctx, live.TokenHash)
		require.NoError(t, err)
	})
}

func TestPasswordResetRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPasswordResetRepository(testPool)
	user := createTestUser(ctx, t, "reset_owner", nil)
	now := time.Now().UTC().Truncate(time.Microsecond)

	newReset := func(t *testing.T, createdAt time.Time) *auth.PasswordReset {
		t.Helper()
		_, hash, err := auth.GenerateResetToken()
		require.NoError(t, err)
		r, err := auth.NewPasswordReset(user.ID, hash, createdAt, createdAt.Add(30*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, r))
		return r
	}

	t.Run("invalidate keeps rows for rate limiting", func(t *testing.T) {
		t.Cleanup(func() { _ = repo.DeleteByUser(ctx, user.ID) })
		first := newReset(t, now.Add(-2*time.Minute))
		second := newReset(t, now.Add(-time.Minute))

		require.NoError(t, repo.InvalidateByUser(ctx, user.ID, now))
		third := newReset(t, now)

		resets, err := repo.ListByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, resets, 3)
		assert.Equal(t, third.ID, resets[0].ID)
		assert.True(t, resets[1].IsInvalidated())
		assert.True(t, resets[2].IsInvalidated())

		for _, r := range []*auth.PasswordReset{first, second} {
			ok, err := repo.IsValidToken(ctx, r.TokenHash)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		ok, err := repo.IsValidToken(ctx, third.TokenHash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete claims exactly once", func(t *testing.T) {
		r := newReset(t, now)

		first, err := repo.Delete(ctx, r.ID)
		require.NoError(t, err)
		second, err := repo.Delete(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
	})

	t.Run("delete expired honours cutoff", func(t *testing.T) {
		t.Cleanup(func() { _ = repo.DeleteByUser(ctx, user.ID) })
		old := newReset(t, now.Add(-2*time.Hour))
		recent := newReset(t, now)

		n, err := repo.DeleteExpired(ctx, now.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByTokenHash(ctx, old.TokenHash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		stored, err := repo.GetByTokenHash(ctx, recent.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, recent.ExpiresAt, stored.ExpiresAt.UTC())
	})

	t.Run("cascades when the user is deleted", func(t *testing.T) {
		doomed := createTestUser(ctx, t, "reset_doomed", nil)
		_, hash, err := auth.GenerateResetToken()
		require.NoError(t, err)
		r, err := auth.NewPasswordReset(doomed.ID, hash, now, now.Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, r))

		_, err = testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, doomed.ID.String())
		require.NoError(t, err)

		_, err = repo.GetByTokenHash(ctx, hash)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

}
