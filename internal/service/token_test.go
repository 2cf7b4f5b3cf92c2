package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", 15*time.Minute)
	wallet := addr("0x00000000000000000000000000000000000000f1")

	tok, err := m.Issue(wallet)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, tok.ExpiresIn)

	got, err := m.ParseAccess(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, wallet, got)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	tok, err := m.Issue(addr("0xf1"))
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.ParseAccess(tok.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	tok, err := NewTokenManager("one", time.Minute).Issue(addr("0xf1"))
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Minute).ParseAccess(tok.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenManager_RejectsNonAddressSubject(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = m.ParseAccess(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}
