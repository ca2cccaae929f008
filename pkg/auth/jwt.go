// Package auth validates the bearer tokens presented by collaborating
// clients. Tokens are HS256 signed; identity provisioning is external.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "flowsketch-backend/pkg/errors"
)

// Claims is the token payload the backend cares about
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Validator checks bearer tokens
type Validator struct {
	secret []byte
}

// NewValidator creates a validator for HS256 tokens signed with secret
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and verifies a token string and returns the user id
func (v *Validator) ValidateToken(tokenString string) (string, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return "", pkgerrors.NewUnauthorizedError("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pkgerrors.NewUnauthorizedError("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return "", pkgerrors.NewUnauthorizedError("invalid token").WithCause(err)
	}
	if !token.Valid {
		return "", pkgerrors.NewUnauthorizedError("invalid token")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", pkgerrors.NewUnauthorizedError("token carries no user identity")
	}
	return userID, nil
}

// IssueToken mints a token for the given user, used by tests and local dev
func (v *Validator) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
