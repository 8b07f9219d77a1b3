package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters-long"

func TestNewServiceRejectsShortSecret(t *testing.T) {
	_, err := NewService(Config{Secret: "too-short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestGenerateAndValidateToken(t *testing.T) {
	service, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)

	token, expiresAt, err := service.GenerateToken("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "drover", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)
	b, err := NewService(Config{Secret: strings.Repeat("x", 32)})
	require.NoError(t, err)

	token, _, err := a.GenerateToken("alice")
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	service, err := NewService(Config{Secret: testSecret, TokenDuration: -time.Hour})
	require.NoError(t, err)

	token, _, err := service.GenerateToken("alice")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	other, err := NewService(Config{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)
	service, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)

	token, _, err := other.GenerateToken("alice")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	service, err := NewService(Config{Secret: testSecret})
	require.NoError(t, err)

	_, err = service.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCustomTokenDuration(t *testing.T) {
	service, err := NewService(Config{Secret: testSecret, TokenDuration: time.Hour})
	require.NoError(t, err)

	_, expiresAt, err := service.GenerateToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
}
