package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPIN(t *testing.T) {
	hash, err := HashPIN("1111")
	require.NoError(t, err)
	assert.NotEqual(t, "1111", hash)

	assert.NoError(t, VerifyPIN(hash, "1111"))
	assert.ErrorIs(t, VerifyPIN(hash, "2222"), ErrPINMismatch)
}

func TestHashPINRejectsEmpty(t *testing.T) {
	_, err := HashPIN("")
	assert.Error(t, err)
}

func TestVerifyPINMalformedHash(t *testing.T) {
	err := VerifyPIN("not-a-bcrypt-hash", "1111")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPINMismatch)
}

func TestVerifyUnknownAlwaysMismatches(t *testing.T) {
	hash, err := HashPIN("1111")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, VerifyPIN(hash, "1111"))
	known := time.Since(start)

	start = time.Now()
	assert.ErrorIs(t, VerifyUnknown("1111"), ErrPINMismatch)
	assert.ErrorIs(t, VerifyUnknown(""), ErrPINMismatch)
	unknown := time.Since(start) / 2

	assert.Greater(t, unknown, known/4)
}
