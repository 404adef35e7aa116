package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	token, expiresAt, err := IssueAccessToken(42, "alice", "secret", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

	claims, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.AccountID)
	assert.Equal(t, "alice", claims.Identifier)
	assert.Equal(t, "42", claims.Subject)
}

func TestAccessToken_Rejections(t *testing.T) {
	token, _, err := IssueAccessToken(1, "alice", "secret", time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	expired, _, err := IssueAccessToken(1, "alice", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseAccessToken("not-a-jwt", "secret")
	assert.Error(t, err)
}

func TestVerifyRefreshSignature_IgnoresExpiry(t *testing.T) {
	token, _, err := IssueRefreshToken(7, "jti-1", "refresh", -time.Hour)
	require.NoError(t, err)

	claims, err := VerifyRefreshSignature(token, "refresh")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.AccountID)
	assert.Equal(t, "jti-1", claims.ID)

	_, err = VerifyRefreshSignature(token, "access")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}
