// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package session

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/linkhoard/linkhoard/internal/auth"
)

// CookieBackend keeps the whole session in a signed token. Sessions cannot
// be revoked before they expire; Destroy only clears the client cookie.
type CookieBackend struct {
	codec *auth.TokenCodec
	now   func() time.Time
}

// NewCookieBackend creates a CookieBackend.
func NewCookieBackend(codec *auth.TokenCodec) (*CookieBackend, error) {
	if codec == nil {
		return nil, oops.Code("SESSION_BACKEND_INVALID").Errorf("token codec is required")
	}
	return &CookieBackend{codec: codec, now: time.Now}, nil
}

// Load decodes the token. Any decode failure is no session.
func (b *CookieBackend) Load(_ context.Context, credential string) (*State, error) {
	claims := b.codec.Decode(credential)
	if claims == nil {
		return nil, nil
	}

	state := &State{
		Persistent: claims.Persistent,
		Flash:      claims.Flash,
		ExpiresAt:  time.Unix(claims.ExpiresAt, 0),
	}
	if !claims.UserID.IsZero() {
		uid := claims.UserID
		state.UserID = &uid
	}
	return state, nil
}

// Save signs the state into a fresh token.
func (b *CookieBackend) Save(_ context.Context, state *State) (string, error) {
	claims := auth.Claims{
		IssuedAt:   b.now().Unix(),
		ExpiresAt:  state.ExpiresAt.Unix(),
		Persistent: state.Persistent,
		Flash:      state.Flash,
	}
	if state.UserID != nil {
		claims.UserID = *state.UserID
	}

	token, err := b.codec.Encode(claims)
	if err != nil {
		return "", oops.Code("SESSION_SAVE_FAILED").Wrap(err)
	}
	return token, nil
}

// Destroy is a no-op: a self-contained token has no server-side state.
func (b *CookieBackend) Destroy(context.Context, *State) error {
	return nil
}

var _ Backend = (*CookieBackend)(nil)
