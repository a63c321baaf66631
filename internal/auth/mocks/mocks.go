// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package mocks provides testify mocks for the auth collaborator interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// T is the subset of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t T) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	ret := m.Called(ctx, username)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) GetByEmailHash(ctx context.Context, emailHash string) (*auth.User, error) {
	ret := m.Called(ctx, emailHash)
	user, _ := ret.Get(0).(*auth.User)
	return user, ret.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockPasswordResetRepository is a mock auth.PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

// NewMockPasswordResetRepository creates a mock that asserts its expectations on cleanup.
func NewMockPasswordResetRepository(t T) *MockPasswordResetRepository {
	m := &MockPasswordResetRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordResetRepository) Create(ctx context.Context, reset *auth.PasswordReset) error {
	return m.Called(ctx, reset).Error(0)
}

func (m *MockPasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.PasswordReset, error) {
	ret := m.Called(ctx, tokenHash)
	reset, _ := ret.Get(0).(*auth.PasswordReset)
	return reset, ret.Error(1)
}

func (m *MockPasswordResetRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.PasswordReset, error) {
	ret := m.Called(ctx, userID)
	resets, _ := ret.Get(0).([]*auth.PasswordReset)
	return resets, ret.Error(1)
}

func (m *MockPasswordResetRepository) IsValidToken(ctx context.Context, tokenHash string) (bool, error) {
	ret := m.Called(ctx, tokenHash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordResetRepository) InvalidateByUser(ctx context.Context, userID ulid.ULID, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

func (m *MockPasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) (bool, error) {
	ret := m.Called(ctx, id)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordResetRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

// MockMailer is a mock auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// NewMockMailer creates a mock that asserts its expectations on cleanup.
func NewMockMailer(t T) *MockMailer {
	m := &MockMailer{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockMailer) SendPasswordResetEmail(ctx context.Context, to, rawToken, resetURLBase string) error {
	return m.Called(ctx, to, rawToken, resetURLBase).Error(0)
}

// MockSessionRevoker is a mock auth.SessionRevoker.
type MockSessionRevoker struct {
	mock.Mock
}

// NewMockSessionRevoker creates a mock that asserts its expectations on cleanup.
func NewMockSessionRevoker(t T) *MockSessionRevoker {
	m := &MockSessionRevoker{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRevoker) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

// MockWebSessionRepository is a mock auth.WebSessionRepository.
type MockWebSessionRepository struct {
	mock.Mock
}

// NewMockWebSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockWebSessionRepository(t T) *MockWebSessionRepository {
	m := &MockWebSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockWebSessionRepository) Create(ctx context.Context, session *auth.WebSession) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockWebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	ret := m.Called(ctx, tokenHash)
	session, _ := ret.Get(0).(*auth.WebSession)
	return session, ret.Error(1)
}

func (m *MockWebSessionRepository) Update(ctx context.Context, session *auth.WebSession) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockWebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockWebSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockWebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ret := m.Called(ctx)
	n, _ := ret.Get(0).(int64)
	return n, ret.Error(1)
}

var (
	_ auth.WebSessionRepository    = (*MockWebSessionRepository)(nil)
	_ auth.UserRepository          = (*MockUserRepository)(nil)
	_ auth.PasswordHasher          = (*MockPasswordHasher)(nil)
	_ auth.PasswordResetRepository = (*MockPasswordResetRepository)(nil)
	_ auth.Mailer                  = (*MockMailer)(nil)
	_ auth.SessionRevoker          = (*MockSessionRevoker)(nil)
)
