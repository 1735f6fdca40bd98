// Package auth issues and checks session tokens, hashes passwords, and runs
// the optional GitHub sign-in flow.
//
// A session is an HS256 JWT carried in the HttpOnly "token" cookie (or an
// Authorization: Bearer header for API clients). The token holds the user
// id in "sub" and the user's role, so authorization checks need no DB lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/servicehours/internal/model"
)

const (
	issuer = "servicehours"

	// DefaultTokenTTL is how long a sign-in lasts.
	DefaultTokenTTL = 24 * time.Hour
)

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultTokenTTL}, nil
}

// TTL is the lifetime of tokens from Generate. Handlers use it for the
// cookie's Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

type claims struct {
	Role        model.Role `json:"role"`
	DisplayName string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs a token for identity with the default lifetime.
func (s *TokenService) Generate(identity model.Identity) (string, error) {
	return s.GenerateWithDuration(identity, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use
// negative durations to mint expired tokens.
func (s *TokenService) GenerateWithDuration(identity model.Identity, d time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", errors.New("auth: identity has no user id")
	}
	now := time.Now()

	c := claims{
		Role:        identity.Role,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns the identity in it.
//
// Only HS256 is accepted; passing jwt.WithValidMethods stops a token signed
// with "none" or an asymmetric algorithm from being verified with our secret.
func (s *TokenService) Validate(tokenStr string) (model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.Identity{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return model.Identity{}, errors.New("auth: token has no subject")
	}
	if !c.Role.Valid() {
		return model.Identity{}, fmt.Errorf("auth: token has unknown role %q", c.Role)
	}

	return model.Identity{
		UserID:      c.Subject,
		DisplayName: c.DisplayName,
		Role:        c.Role,
	}, nil
}
