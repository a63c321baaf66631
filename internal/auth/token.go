// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the shortest signing secret accepted by NewTokenCodec.
const MinSecretLength = 32

// tokenEncoding is used for both token segments; it is cookie and URL safe.
var tokenEncoding = base64.RawURLEncoding

// Claims is the payload of a self-contained session token. Times are whole
// Unix seconds.
type Claims struct {
	UserID     ulid.ULID `json:"uid"`
	IssuedAt   int64     `json:"iat"`
	ExpiresAt  int64     `json:"exp"`
	Persistent bool      `json:"per,omitempty"`
	Flash      *Flash    `json:"fl,omitempty"`
}

// ExpiredAt reports whether the claims are expired at t.
func (c *Claims) ExpiredAt(t time.Time) bool {
	return t.Unix() >= c.ExpiresAt
}

// EncodeToken serializes claims and appends an HMAC-SHA256 signature over
// the serialized form: base64url(json) "." base64url(mac).
func EncodeToken(claims Claims, secret []byte) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", oops.Code("TOKEN_ENCODE_FAILED").Wrap(err)
	}

	body := tokenEncoding.EncodeToString(payload)
	return body + "." + sign(body, secret), nil
}

// DecodeToken verifies and parses a token produced by EncodeToken. It
// returns nil when the token is malformed, the signature does not match,
// the payload does not parse, or the claims are expired at now. The
// signature is checked before the payload is decoded.
func DecodeToken(token string, secret []byte, now time.Time) *Claims {
	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return nil
	}
	body, sig := token[:idx], token[idx+1:]

	if !hmac.Equal([]byte(sig), []byte(sign(body, secret))) {
		return nil
	}

	payload, err := tokenEncoding.DecodeString(body)
	if err != nil {
		return nil
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	if claims.ExpiredAt(now) {
		return nil
	}
	return &claims
}

func sign(body string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(body))
	return tokenEncoding.EncodeToString(mac.Sum(nil))
}

// TokenCodec binds EncodeToken and DecodeToken to the configured secret.
// It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec creates a TokenCodec. The secret must be at least
// MinSecretLength bytes.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenCodec{secret: key, now: time.Now}, nil
}

// Encode signs claims.
func (c *TokenCodec) Encode(claims Claims) (string, error) {
	return EncodeToken(claims, c.secret)
}

// Decode verifies token at the current time.
func (c *TokenCodec) Decode(token string) *Claims {
	return DecodeToken(token, c.secret, c.now())
}
