package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager("  ", time.Hour)
	require.Error(t, err)

	_, err = NewTokenManager("secret", 0)
	require.Error(t, err)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m, err := NewTokenManager("secret", 7*24*time.Hour)
	require.NoError(t, err)

	token, err := m.IssueToken("user-1")
	require.NoError(t, err)

	userID, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	issuer, err := NewTokenManager("secret-a", time.Hour)
	require.NoError(t, err)
	verifier, err := NewTokenManager("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueToken("user-1")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m, err := NewTokenManager("secret", 7*24*time.Hour)
	require.NoError(t, err)

	issued := time.Now().Add(-8 * 24 * time.Hour)
	m.now = func() time.Time { return issued }
	token, err := m.IssueToken("user-1")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsTamperedAndMalformed(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)

	token, err := m.IssueToken("user-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for _, bad := range []string{"", "garbage", tampered} {
		_, err := m.VerifyToken(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.VerifyToken(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsMissingSubject(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)

	token, err := m.IssueToken("")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
