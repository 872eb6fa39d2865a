package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every token and required when verifying.
const Issuer = "coinledger"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carries the owner a bearer token acts for. Subject holds the same id
// as a string.
type Claims struct {
	OwnerID int64 `json:"owner_id"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies HS256 owner tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	m := &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)

	return m
}

// Generate issues a token for ownerID that expires after the manager's ttl.
func (m *JWTManager) Generate(ownerID int64) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("owner id must be positive, got %d", ownerID)
	}

	now := m.now()
	claims := Claims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(ownerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, issuer and lifetime. Expired tokens yield
// ErrExpiredToken, anything else ErrInvalidToken.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.OwnerID <= 0 || claims.Subject != strconv.FormatInt(claims.OwnerID, 10) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
