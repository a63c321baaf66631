// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkhoard/linkhoard/internal/config"
	"github.com/linkhoard/linkhoard/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "non-numeric returns error", input: "abc", wantErr: true},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "negative parses", input: "-1", wantVersion: -1},
		{name: "empty string returns error", input: "", wantErr: true},
		{name: "whitespace only returns error", input: "   ", wantErr: true},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	forced  int
	err     error
	closed  bool
}

func (m *fakeMigrator) Up() error   { m.calls = append(m.calls, "up"); return m.err }
func (m *fakeMigrator) Down() error { m.calls = append(m.calls, "down"); return m.err }

func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, m.err
}

func (m *fakeMigrator) Force(v int) error {
	m.calls = append(m.calls, "force")
	m.forced = v
	return m.err
}

func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return []uint{2}, m.err }
func (m *fakeMigrator) AppliedMigrations() ([]uint, error) { return []uint{1}, m.err }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvDatabaseURL, "postgres://linkhoard@localhost/linkhoard")

	var gotURL string
	cmd := newMigrateCmd(&MigrateDeps{
		MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return m, nil
		},
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, "postgres://linkhoard@localhost/linkhoard", gotURL)
	}
	return buf.String(), err
}

func TestMigrateCommand(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, "up")
		require.NoError(t, err)
		assert.Equal(t, []string{"up"}, m.calls)
		assert.True(t, m.closed)
		assert.Contains(t, out, "Migrations completed successfully")
	})

	t.Run("down", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "down")
		require.NoError(t, err)
		assert.Equal(t, []string{"down"}, m.calls)
	})

	t.Run("version reports dirty state", func(t *testing.T) {
		out, err := runMigrate(t, &fakeMigrator{version: 3, dirty: true}, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "Version: 3 (dirty)")
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		out, err := runMigrate(t, m, "force", "2")
		require.NoError(t, err)
		assert.Equal(t, 2, m.forced)
		assert.Contains(t, out, "Forced version 2")
	})

	t.Run("force rejects garbage", func(t *testing.T) {
		m := &fakeMigrator{}
		_, err := runMigrate(t, m, "force", "latest")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
		assert.Empty(t, m.calls)
		assert.True(t, m.closed)
	})

	t.Run("status", func(t *testing.T) {
		out, err := runMigrate(t, &fakeMigrator{version: 1}, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Current version: 1 (clean)")
		assert.Contains(t, out, "Applied: 1")
		assert.Contains(t, out, "Pending: 1")
	})

	t.Run("migrator errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := runMigrate(t, &fakeMigrator{err: boom}, "up")
		require.ErrorIs(t, err, boom)
	})

	t.Run("requires a database URL", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv(config.EnvDatabaseURL, "")
		t.Setenv("DATABASE_URL", "")
		cmd := newMigrateCmd(&MigrateDeps{
			MigratorFactory: func(string) (Migrator, error) {
				t.Fatal("migrator must not be created")
				return nil, nil
			},
		})
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{"up"})
		err := cmd.Execute()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
