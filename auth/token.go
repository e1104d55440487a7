package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-relay"

// CustomClaims is the identity carried by a bearer token. Tokens are issued by
// the application that owns the users, the relay only checks them.
type CustomClaims struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Role   string `json:"role" validate:"required,oneof=customer company admin"`
	jwt.RegisteredClaims
}

// Tokens signs and checks HS256 tokens with a shared secret.
type Tokens struct {
	secret   []byte
	duration time.Duration
}

func NewTokens(secret string, duration time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for an identity.
// Used by the operator CLI and the tests, production tokens come from the main application.
func (t *Tokens) GenerateToken(identity domain.Identity) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: string(identity.UserID),
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken checks signature and expiry then returns the identity of the token.
func (t *Tokens) ValidateToken(tokenString string) (domain.Identity, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}
	return domain.Identity{UserID: domain.UserID(claims.UserID), Role: domain.Role(claims.Role)}, nil
}
