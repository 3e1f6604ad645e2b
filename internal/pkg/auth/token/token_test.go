package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func Test_GenerateAndParseToken(t *testing.T) {
	claims := &Claims{
		UserID: "u-101",
		Name:   "Alice",
		Email:  "alice@example.com",
	}

	tokenString, err := GenerateToken(claims, testSecret, ConnectionTokenExpiration)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	parsed, err := ParseToken(tokenString, testSecret)
	require.NoError(t, err)

	assert.Equal(t, "u-101", parsed.UserID)
	assert.Equal(t, "Alice", parsed.Name)
	assert.Equal(t, "alice@example.com", parsed.Email)
	assert.Equal(t, TokenIssuer, parsed.Issuer)
}

func Test_ParseToken_wrongSecret(t *testing.T) {
	claims := &Claims{UserID: "u-101", Name: "Alice", Email: "alice@example.com"}

	tokenString, err := GenerateToken(claims, testSecret, ConnectionTokenExpiration)
	require.NoError(t, err)

	parsed, err := ParseToken(tokenString, "some-other-secret")
	assert.Error(t, err)
	assert.Nil(t, parsed)
}

func Test_ParseToken_expired(t *testing.T) {
	claims := &Claims{UserID: "u-101", Name: "Alice", Email: "alice@example.com"}

	tokenString, err := GenerateToken(claims, testSecret, -time.Minute)
	require.NoError(t, err)

	parsed, err := ParseToken(tokenString, testSecret)
	assert.Error(t, err)
	assert.Nil(t, parsed)
}

func Test_ParseToken_garbage(t *testing.T) {
	parsed, err := ParseToken("not.a.token", testSecret)
	assert.Error(t, err)
	assert.Nil(t, parsed)
}
