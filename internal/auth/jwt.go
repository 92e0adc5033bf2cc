// Package auth issues and checks learner session tokens and talks to GitHub
// for sign-in.
//
// Every visitor is a learner. A visitor without a token is given an
// anonymous learner ID on their first request; progress and projects are
// stored against that ID. Signing in with GitHub swaps the token for one
// bound to a persistent account and the anonymous data is merged into it.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "js-playground"

	// SessionDuration is how long a signed-in learner's token lasts.
	SessionDuration = 30 * 24 * time.Hour
	// AnonymousDuration is how long an anonymous learner keeps its ID.
	// Progress stored against an expired anonymous ID is unreachable.
	AnonymousDuration = 365 * 24 * time.Hour
)

// Identity is the learner a request acts for.
type Identity struct {
	LearnerID string
	Anonymous bool
}

// TokenService signs and validates HS256 session tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService requires a secret of at least 16 characters.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// RandomSecret returns a hex secret for servers started without JWT_SECRET.
// Tokens signed with it do not survive a restart.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type claims struct {
	jwt.RegisteredClaims
	Anonymous bool `json:"anon,omitempty"`
}

// Issue signs a token for id, valid for the duration that matches its kind.
func (s *TokenService) Issue(id Identity) (string, error) {
	if id.LearnerID == "" {
		return "", errors.New("auth: learner ID must not be empty")
	}
	d := SessionDuration
	if id.Anonymous {
		d = AnonymousDuration
	}
	return s.IssueWithDuration(id, d)
}

// IssueWithDuration is Issue with an explicit lifetime. Tests use it to mint
// expired tokens.
func (s *TokenService) IssueWithDuration(id Identity, d time.Duration) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.LearnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Anonymous: id.Anonymous,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature, issuer and expiry and returns the identity.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
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
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("auth: token expired")
		}
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("auth: token has no subject")
	}

	return Identity{LearnerID: c.Subject, Anonymous: c.Anonymous}, nil
}
