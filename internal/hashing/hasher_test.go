package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierKeyDeterministic(t *testing.T) {
	h := NewHasher("test-secret", "test-pepper")

	k1 := h.IdentifierKey("1234567")
	k2 := h.IdentifierKey("1234567")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64) // hex-encoded SHA-256
}

func TestIdentifierKeyDistinctInputs(t *testing.T) {
	h := NewHasher("test-secret", "test-pepper")

	assert.NotEqual(t, h.IdentifierKey("1234567"), h.IdentifierKey("1234568"))
	assert.NotEqual(t, h.IdentifierKey("12345"), h.IdentifierKey("012345"))
}

func TestIdentifierKeyDependsOnSecret(t *testing.T) {
	a := NewHasher("secret-a", "pepper")
	b := NewHasher("secret-b", "pepper")

	assert.NotEqual(t, a.IdentifierKey("1234567"), b.IdentifierKey("1234567"))
}

func TestHashCodeRoundTrip(t *testing.T) {
	h := NewHasher("secret", "pepper")

	hash, salt, err := h.HashCode("042913")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	require.NotEmpty(t, salt)

	ok, err := h.VerifyCode("042913", hash, salt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyCode("042914", hash, salt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCodeSaltVaries(t *testing.T) {
	h := NewHasher("secret", "pepper")

	h1, s1, err := h.HashCode("123456")
	require.NoError(t, err)
	h2, s2, err := h.HashCode("123456")
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyCodeRejectsMalformedStoredValues(t *testing.T) {
	h := NewHasher("secret", "pepper")

	_, err := h.VerifyCode("123456", "not base64 at all!!", "also bad!!")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestProfileChecksum(t *testing.T) {
	salt, err := NewRecordSalt()
	require.NoError(t, err)

	sum := ProfileChecksum(salt, "+972501234567", "Noa", "Levi", "Sergeant")
	assert.True(t, VerifyProfileChecksum(sum, salt, "+972501234567", "Noa", "Levi", "Sergeant"))
	assert.False(t, VerifyProfileChecksum(sum, salt, "+972501234567", "Noa", "Levi", "Corporal"))

	otherSalt, err := NewRecordSalt()
	require.NoError(t, err)
	assert.False(t, VerifyProfileChecksum(sum, otherSalt, "+972501234567", "Noa", "Levi", "Sergeant"))
}
