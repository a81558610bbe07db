// Package auth resolves API credentials carried as HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for tokens that fail parsing, signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSecretNotConfigured is returned when no signing secret is set.
	ErrSecretNotConfigured = errors.New("jwt secret not configured")
)

// Claims carried by an API credential.
type Claims struct {
	Tier  string `json:"tier,omitempty"`
	Admin bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and validates credential tokens.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens creates a token issuer/validator
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for subject. A zero ttl issues a token without expiry.
func (t *Tokens) Issue(subject, tier string, admin bool, ttl time.Duration) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrSecretNotConfigured
	}
	now := t.now()
	claims := Claims{
		Tier:  tier,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   t.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns the principal it carries.
func (t *Tokens) Validate(tokenString string) (*Principal, error) {
	if len(t.secret) == 0 {
		return nil, ErrSecretNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Principal{Identity: claims.Subject, Tier: claims.Tier, Admin: claims.Admin}, nil
}
