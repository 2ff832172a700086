package opsauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	match, err := CheckPassword("correct-horse-battery-staple", hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = CheckPassword("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCheckPasswordRejectsMalformedHash(t *testing.T) {
	_, err := CheckPassword("anything", "not-a-valid-hash")
	assert.Error(t, err)
}
