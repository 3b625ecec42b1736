package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents admin session claims
type Claims struct {
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// RoleAdmin is the only role issued today
const RoleAdmin = "admin"

// TokenManager issues and verifies HS256 admin session tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager returns nil when secret is empty, which disables session login.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	if secret == "" {
		return nil
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Generate signs a token for username valid from now for the configured ttl
func (m *TokenManager) Generate(username string, now time.Time) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("token manager not configured")
	}

	expireAt := now.Add(m.ttl)
	claims := Claims{
		Username: username,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expireAt, nil
}

// Parse validates signature, expiry and issuer
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	if m == nil {
		return nil, errors.New("token manager not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
