package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateAccessToken("user-123", "nakes@example.com", "nakes")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "nakes@example.com", claims.Email)
	assert.Equal(t, "nakes", claims.Role)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, "nakeslink", claims.Issuer)
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").GenerateAccessToken("user-123", "a@example.com", "user")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").ValidateToken(token)
	assert.Error(t, err)

	_, err = NewJWTService("secret-a").ValidateToken("not-a-token")
	assert.Error(t, err)
}
