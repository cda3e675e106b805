package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, "pw1", hash)
	assert.True(t, CheckPasswordHash("pw1", hash))
	assert.False(t, CheckPasswordHash("pw2", hash))
	assert.False(t, CheckPasswordHash("pw1", "not-a-hash"))
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", NormalizeUsername("  Alice \t"))
	assert.Equal(t, "", NormalizeUsername("   "))
}
