package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	return token
}

func validClaims(now time.Time) Claims {
	return Claims{
		OwnerID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "7",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func TestJWTManagerRoundTrip(t *testing.T) {
	m := NewJWTManager("super-secret", time.Minute)

	token, err := m.Generate(42)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.OwnerID)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestJWTManagerGenerateRejectsBadOwner(t *testing.T) {
	_, err := NewJWTManager("secret", time.Minute).Generate(0)
	assert.Error(t, err)
}

func TestJWTManagerExpiry(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	token, err := m.Generate(9)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(30 * time.Second) }
	_, err = m.Verify(token)
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManagerVerifyRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	now := time.Now()

	noExpiry := validClaims(now)
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims(now)
	wrongIssuer.Issuer = "someone-else"

	mismatchedSubject := validClaims(now)
	mismatchedSubject.Subject = "8"

	noOwner := validClaims(now)
	noOwner.OwnerID = 0
	noOwner.Subject = "0"

	tests := []struct {
		name  string
		token string
	}{
		{"malformed", "not-a-token"},
		{"foreign secret", sign(t, "other", jwt.SigningMethodHS256, validClaims(now))},
		{"other hmac method", sign(t, "secret", jwt.SigningMethodHS512, validClaims(now))},
		{"missing expiry", sign(t, "secret", jwt.SigningMethodHS256, noExpiry)},
		{"wrong issuer", sign(t, "secret", jwt.SigningMethodHS256, wrongIssuer)},
		{"subject mismatch", sign(t, "secret", jwt.SigningMethodHS256, mismatchedSubject)},
		{"no owner", sign(t, "secret", jwt.SigningMethodHS256, noOwner)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Verify(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := m.Verify(sign(t, "secret", jwt.SigningMethodHS256, validClaims(now)))
	assert.NoError(t, err)
}
