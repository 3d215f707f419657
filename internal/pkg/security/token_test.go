package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(42, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	token, err := GenerateAccessToken(42, "user")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	_, err = ParseAccessToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	_, err := ParseAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRefreshTokenIsOpaqueAndUnique(t *testing.T) {
	a, err := GenerateRefreshToken()
	require.NoError(t, err)
	b, err := GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
