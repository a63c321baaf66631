// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	DefaultArgon2Time    = 1         // iterations
	DefaultArgon2Memory  = 64 * 1024 // 64 MB
	DefaultArgon2Threads = 4         // parallelism

	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be recomputed with the
	// current algorithm and parameters.
	NeedsUpgrade(hash string) bool
}

// HashParams is the argon2id cost. It is process-wide configuration.
type HashParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultHashParams returns the OWASP-recommended cost.
func DefaultHashParams() HashParams {
	return HashParams{
		Time:      DefaultArgon2Time,
		MemoryKiB: DefaultArgon2Memory,
		Threads:   DefaultArgon2Threads,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id. Legacy bcrypt
// hashes still verify and are reported by NeedsUpgrade.
type Argon2idHasher struct {
	params HashParams
}

// NewArgon2idHasher creates a new Argon2idHasher. Zero fields fall back to
// the defaults.
func NewArgon2idHasher(params HashParams) *Argon2idHasher {
	def := DefaultHashParams()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return h.encode(salt, hash), nil
}

func (h *Argon2idHasher) encode(salt, hash []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// Verify checks if the password matches the hash. A malformed hash costs
// the same argon2id work as a wrong password before the error is returned.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}

	p, salt, expectedHash, err := parseArgon2id(encodedHash)
	if err != nil {
		h.burn(password)
		return false, err
	}

	computedHash := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(expectedHash)))

	if subtle.ConstantTimeCompare(computedHash, expectedHash) == 1 {
		return true, nil
	}
	return false, nil
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g. bcrypt) or
// was produced with different parameters.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	p, _, _, err := parseArgon2id(hash)
	if err != nil {
		return true
	}
	return p != h.params
}

// burn spends one hash computation's worth of effort.
func (h *Argon2idHasher) burn(password string) {
	var salt [argon2SaltLen]byte
	_ = argon2.IDKey([]byte(password), salt[:], h.params.Time, h.params.MemoryKiB, h.params.Threads, argon2KeyLen)
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

func parseArgon2id(encodedHash string) (HashParams, []byte, []byte, error) {
	var p HashParams

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	if time == 0 || memory == 0 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("cost parameters must be positive")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate key length to prevent integer overflow in uint32 conversion
	keyLen := len(expectedHash)
	if keyLen <= 0 || keyLen > 1<<30 {
		return p, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	p = HashParams{Time: time, MemoryKiB: memory, Threads: uint8(threads)}
	return p, salt, expectedHash, nil
}
