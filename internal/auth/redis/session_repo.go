// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package redis implements the server-side session repository on Redis.
// Records expire through key TTLs; the per-user index sets are pruned by
// DeleteExpired.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// DefaultPrefix namespaces every key written by the repository.
const DefaultPrefix = "linkhoard:session:"

// record is the stored JSON form of a WebSession.
type record struct {
	ID        ulid.ULID        `json:"id"`
	TokenHash string           `json:"token_hash"`
	Data      auth.SessionData `json:"data"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newRecord(s *auth.WebSession) record {
	return record{
		ID:        s.ID,
		TokenHash: s.TokenHash,
		Data:      s.Data,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r record) session() *auth.WebSession {
	return &auth.WebSession{
		ID:        r.ID,
		TokenHash: r.TokenHash,
		Data:      r.Data,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// WebSessionRepository implements auth.WebSessionRepository.
//
// Keys:
//
//	<prefix>id:<id>       JSON record, TTL until expiry
//	<prefix>token:<hash>  record id, TTL until expiry
//	<prefix>user:<id>     set of record ids owned by the user
type WebSessionRepository struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewWebSessionRepository creates a repository. An empty prefix uses DefaultPrefix.
func NewWebSessionRepository(client goredis.UniversalClient, prefix string) *WebSessionRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &WebSessionRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *WebSessionRepository) idKey(id ulid.ULID) string {
	return r.prefix + "id:" + id.String()
}

func (r *WebSessionRepository) tokenKey(hash string) string {
	return r.prefix + "token:" + hash
}

func (r *WebSessionRepository) userKey(id ulid.ULID) string {
	return r.prefix + "user:" + id.String()
}

// Create stores a new web session.
func (r *WebSessionRepository) Create(ctx context.Context, session *auth.WebSession) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("session already expired")
	}

	payload, err := json.Marshal(newRecord(session))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("session_id", session.ID.String()).Wrap(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.idKey(session.ID), payload, ttl)
		pipe.Set(ctx, r.tokenKey(session.TokenHash), session.ID.String(), ttl)
		if uid := session.Data.UserID; uid != nil {
			pipe.SAdd(ctx, r.userKey(*uid), session.ID.String())
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("session_id", session.ID.String()).Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *WebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	id, err := r.client.Get(ctx, r.tokenKey(tokenHash)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").Wrap(err)
	}

	sessionID, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_DATA").With("session_id", id).Wrap(err)
	}
	rec, err := r.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.session(), nil
}

// Update overwrites the data and expiry of a session. An expiry in the past
// deletes the session.
func (r *WebSessionRepository) Update(ctx context.Context, session *auth.WebSession) error {
	prev, err := r.load(ctx, session.ID)
	if err != nil {
		return err
	}

	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.remove(ctx, prev)
	}

	payload, err := json.Marshal(newRecord(session))
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("session_id", session.ID.String()).Wrap(err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.idKey(session.ID), payload, ttl)
		pipe.Set(ctx, r.tokenKey(prev.TokenHash), session.ID.String(), ttl)
		if old := prev.Data.UserID; old != nil && !sameUser(old, session.Data.UserID) {
			pipe.SRem(ctx, r.userKey(*old), session.ID.String())
		}
		if uid := session.Data.UserID; uid != nil {
			pipe.SAdd(ctx, r.userKey(*uid), session.ID.String())
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("session_id", session.ID.String()).Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (r *WebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	rec, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	return r.remove(ctx, rec)
}

// DeleteByUser removes all sessions for a user.
func (r *WebSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	userKey := r.userKey(userID)
	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	keys := []string{userKey}
	for _, raw := range ids {
		id, err := ulid.Parse(raw)
		if err != nil {
			continue
		}
		rec, err := r.load(ctx, id)
		if errors.Is(err, auth.ErrNotFound) {
			continue
		}
		if err != nil {
			return oops.With("user_id", userID.String()).Wrap(err)
		}
		keys = append(keys, r.idKey(id), r.tokenKey(rec.TokenHash))
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired prunes index entries whose records expired through their TTL
// and returns how many were removed.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var pruned int64
	iter := r.client.Scan(ctx, 0, r.prefix+"user:*", 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		ids, err := r.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", userKey).Wrap(err)
		}
		for _, raw := range ids {
			id, err := ulid.Parse(raw)
			if err == nil {
				n, existsErr := r.client.Exists(ctx, r.idKey(id)).Result()
				if existsErr != nil {
					return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", userKey).Wrap(existsErr)
				}
				if n > 0 {
					continue
				}
			}
			if err := r.client.SRem(ctx, userKey, raw).Err(); err != nil {
				return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").With("key", userKey).Wrap(err)
			}
			pruned++
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, oops.Code("SESSION_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return pruned, nil
}

func (r *WebSessionRepository) load(ctx context.Context, id ulid.ULID) (record, error) {
	raw, err := r.client.Get(ctx, r.idKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return record{}, oops.Code("SESSION_NOT_FOUND").With("session_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return record{}, oops.Code("SESSION_GET_FAILED").With("session_id", id.String()).Wrap(err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, oops.Code("SESSION_INVALID_DATA").With("session_id", id.String()).Wrap(err)
	}
	return rec, nil
}

func (r *WebSessionRepository) remove(ctx context.Context, rec record) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, r.idKey(rec.ID), r.tokenKey(rec.TokenHash))
		if uid := rec.Data.UserID; uid != nil {
			pipe.SRem(ctx, r.userKey(*uid), rec.ID.String())
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", rec.ID.String()).Wrap(err)
	}
	return nil
}

func sameUser(a, b *ulid.ULID) bool {
	return a != nil && b != nil && *a == *b
}

var _ auth.WebSessionRepository = (*WebSessionRepository)(nil)
