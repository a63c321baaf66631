// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IdentifierHasher derives deterministic lookup keys for personal
// identifiers such as e-mail addresses. Equal inputs (after trimming and
// case folding) give equal keys; keys cannot be reversed.
type IdentifierHasher struct {
	key []byte
}

// NewIdentifierHasher creates an IdentifierHasher. With an empty key the
// hash is plain SHA-256; a server-held key turns it into HMAC-SHA256 so a
// leaked table cannot be matched against a list of known addresses.
func NewIdentifierHasher(key []byte) *IdentifierHasher {
	return &IdentifierHasher{key: key}
}

// Hash returns the hex-encoded lookup key for value.
func (h *IdentifierHasher) Hash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))

	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(normalized))
		return hex.EncodeToString(sum[:])
	}

	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
