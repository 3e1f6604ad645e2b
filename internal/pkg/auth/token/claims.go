package token

import "github.com/golang-jwt/jwt"

// Claims defines the identity claims carried by a connection token.
// The platform mints these tokens when a user opens the collaboration editor;
// the collaboration server only verifies them.
type Claims struct {
	// StandardClaims embeds the JWT standard fields (Exp, Iat, Iss) required
	// for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// UserID is the platform identifier of the connecting user.
	UserID string `json:"userId"`

	// Name is the user's display name shown to other room participants.
	Name string `json:"name"`

	// Email is the user's contact identifier.
	Email string `json:"email"`
}
