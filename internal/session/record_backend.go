// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// RecordBackend keeps sessions in a WebSessionRepository. The cookie holds
// a random token; the repository is keyed by its SHA-256 hash.
type RecordBackend struct {
	repo   auth.WebSessionRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewRecordBackend creates a RecordBackend. A nil logger uses slog.Default().
func NewRecordBackend(repo auth.WebSessionRepository, logger *slog.Logger) (*RecordBackend, error) {
	if repo == nil {
		return nil, oops.Code("SESSION_BACKEND_INVALID").Errorf("session repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordBackend{repo: repo, now: time.Now, logger: logger}, nil
}

// Load looks the record up by token hash. Expired records are deleted
// best-effort and reported as no session.
func (b *RecordBackend) Load(ctx context.Context, credential string) (*State, error) {
	if credential == "" {
		return nil, nil
	}

	record, err := b.repo.GetByTokenHash(ctx, auth.HashSessionToken(credential))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}

	if record.IsExpiredAt(b.now()) {
		if err := b.repo.Delete(ctx, record.ID); err != nil && !errors.Is(err, auth.ErrNotFound) {
			b.logger.WarnContext(ctx, "best-effort expired session cleanup failed",
				"session_id", record.ID.String(),
				"operation", "delete_session",
				"error", err.Error())
		}
		return nil, nil
	}

	return &State{
		UserID:     record.Data.UserID,
		Persistent: record.Data.KeepSignedIn,
		Flash:      record.Data.Flash,
		ExpiresAt:  record.ExpiresAt,
		recordID:   record.ID,
		credential: credential,
	}, nil
}

// Save creates a record for new state and updates it otherwise. The
// credential is only minted on creation.
func (b *RecordBackend) Save(ctx context.Context, state *State) (string, error) {
	data := auth.SessionData{
		UserID:       state.UserID,
		KeepSignedIn: state.Persistent,
		Flash:        state.Flash,
	}

	if state.recordID.IsZero() {
		token, hash, err := auth.GenerateSessionToken()
		if err != nil {
			return "", oops.Code("SESSION_SAVE_FAILED").Wrap(err)
		}
		record, err := auth.NewWebSession(hash, data, state.ExpiresAt)
		if err != nil {
			return "", oops.Code("SESSION_SAVE_FAILED").Wrap(err)
		}
		if err := b.repo.Create(ctx, record); err != nil {
			return "", oops.Code("SESSION_SAVE_FAILED").With("operation", "create_session").Wrap(err)
		}
		state.recordID = record.ID
		state.credential = token
		return token, nil
	}

	record := &auth.WebSession{
		ID:        state.recordID,
		TokenHash: auth.HashSessionToken(state.credential),
		Data:      data,
		ExpiresAt: state.ExpiresAt,
		UpdatedAt: b.now(),
	}
	if err := b.repo.Update(ctx, record); err != nil {
		return "", oops.Code("SESSION_SAVE_FAILED").
			With("operation", "update_session").
			With("session_id", state.recordID.String()).
			Wrap(err)
	}
	return state.credential, nil
}

// Destroy deletes the record. A record that is already gone is not an error.
func (b *RecordBackend) Destroy(ctx context.Context, state *State) error {
	if state.recordID.IsZero() {
		return nil
	}
	err := b.repo.Delete(ctx, state.recordID)
	if err != nil && !errors.Is(err, auth.ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").With("session_id", state.recordID.String()).Wrap(err)
	}
	state.recordID = ulid.ULID{}
	state.credential = ""
	return nil
}

var _ Backend = (*RecordBackend)(nil)
