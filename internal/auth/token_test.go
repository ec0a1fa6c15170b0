// internal/auth/token_test.go
package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTest(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	secret = []byte("test-secret")

	tok := signTest(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{
		"sub":  "42",
		"name": "alice",
	})
	id, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UserID)
	assert.Equal(t, "alice", id.Username)
}

func TestParseTokenFallbackName(t *testing.T) {
	secret = []byte("test-secret")

	tok := signTest(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "7"})
	id, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "User_7", id.Username)
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	secret = []byte("test-secret")

	_, err := ParseToken("garbage")
	assert.Error(t, err)

	// Wrong key.
	tok := signTest(t, jwt.SigningMethodHS256, []byte("other-secret"), jwt.MapClaims{"sub": "42"})
	_, err = ParseToken(tok)
	assert.Error(t, err)

	// Non-numeric subject.
	tok = signTest(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "alice"})
	_, err = ParseToken(tok)
	assert.Error(t, err)

	// Missing subject.
	tok = signTest(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"name": "alice"})
	_, err = ParseToken(tok)
	assert.Error(t, err)
}
