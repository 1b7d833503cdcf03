package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT configuration
var (
	jwtSecret         []byte
	accessTokenExpiry time.Duration
)

// InitAuthConfig initializes authentication configuration from environment variables
func InitAuthConfig(secret string) {
	jwtSecret = []byte(secret)

	// Access token expiry (default: 1 hour)
	accessExp := os.Getenv("JWT_ACCESS_TOKEN_EXPIRY")
	if accessExp == "" {
		accessExp = "1h"
	}
	accessTokenExpiry, _ = time.ParseDuration(accessExp)
}

// Claims represents JWT claims for an authenticated agent.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a signed access token for an agent.
func GenerateAccessToken(userID int64, username, role string) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("jwt secret not configured")
	}

	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateAccessToken parses and validates an access token, returning
// its claims.
func ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
