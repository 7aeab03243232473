package hashing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params are sized for short-lived numeric codes, not passwords.
// The code is single-use and expires in minutes, so a full password-grade cost
// would only slow down verification.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      16 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher derives the two keyed transforms the registration core depends on:
// the identifier lookup key and the at-rest hash of verification codes.
type Hasher struct {
	params       Argon2Params
	lookupSecret []byte
	codePepper   string
}

func NewHasher(lookupSecret, codePepper string) *Hasher {
	return &Hasher{
		params:       DefaultArgon2Params(),
		lookupSecret: []byte(lookupSecret),
		codePepper:   codePepper,
	}
}

// IdentifierKey transforms a normalized identifier into its directory lookup
// key: HMAC-SHA256 under a server-side secret, hex encoded. Deterministic so
// the key supports O(1) point reads; keyed so the small 5-7 digit input space
// cannot be enumerated offline without the secret. The key must never be
// returned to clients or enumerated in bulk.
func (h *Hasher) IdentifierKey(normalizedID string) string {
	mac := hmac.New(sha256.New, h.lookupSecret)
	mac.Write([]byte(normalizedID))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashCode hashes a verification code for storage using argon2id with a
// per-session random salt and the server pepper.
func (h *Hasher) HashCode(code string) (hash, salt string, err error) {
	saltBytes := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(code+h.codePepper),
		saltBytes,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return base64.RawURLEncoding.EncodeToString(key),
		base64.RawURLEncoding.EncodeToString(saltBytes),
		nil
}

// VerifyCode recomputes the argon2id hash of a submitted code and compares it
// in constant time against the stored hash.
func (h *Hasher) VerifyCode(code, storedHash, storedSalt string) (bool, error) {
	saltBytes, err := base64.RawURLEncoding.DecodeString(storedSalt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(storedHash)
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey(
		[]byte(code+h.codePepper),
		saltBytes,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NewRecordSalt returns fresh per-record randomness for a roster entry.
func NewRecordSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate record salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ProfileChecksum ties a roster entry's profile fields to its per-record salt
// so a corrupted or tampered row is detectable on read. This is the only use
// of the salt column; the lookup key itself is deliberately unsalted (see
// IdentifierKey).
func ProfileChecksum(salt, phoneNumber, firstName, lastName, rank string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(strings.Join([]string{phoneNumber, firstName, lastName, rank}, "\x1f")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyProfileChecksum reports whether the stored checksum matches the
// profile fields.
func VerifyProfileChecksum(checksum, salt, phoneNumber, firstName, lastName, rank string) bool {
	expected := ProfileChecksum(salt, phoneNumber, firstName, lastName, rank)
	return hmac.Equal([]byte(expected), []byte(checksum))
}
