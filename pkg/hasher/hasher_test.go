package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	assert.NotContains(t, token, "=")

	hash, err := HashToken([]byte(token))
	require.NoError(t, err)

	assert.True(t, TokenMatches(token, hash))
	assert.True(t, TokenMatches(" "+token+"\n", hash+"\n"))
	assert.False(t, TokenMatches(token+"x", hash))
	assert.False(t, TokenMatches("", hash))
	assert.False(t, TokenMatches(token, ""))
}
