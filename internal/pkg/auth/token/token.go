/*
Package token verifies the signed identity tokens presented at connection time.

Tokens are HS256-signed JWTs minted by the surrounding platform. The collaboration
server never issues identity; it only validates the claims and attaches them to the
new session.
*/
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// ConnectionTokenExpiration is the lifetime of a connection token.
	ConnectionTokenExpiration = 24 * time.Hour

	// TokenIssuer identifies the expected issuer of the token.
	TokenIssuer = "coedit-platform"
)

// GenerateToken creates and signs a new token string from the provided Claims.
// Used by the platform side and by tests; the server itself only parses.
func GenerateToken(claims *Claims, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	claims.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return tkn.SignedString([]byte(secretKey))
}

// ParseToken parses and validates a token string using the provided secretKey.
func ParseToken(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	tkn, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !tkn.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}
