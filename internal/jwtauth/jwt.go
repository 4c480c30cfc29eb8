// Package jwtauth issues and verifies HS256 bearer tokens carrying a user id
// and role.
package jwtauth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/golden-feast/internal/domain/auth"
)

var _ auth.TokenParser = (*Tokens)(nil)

// DefaultTTL is the lifetime of issued tokens when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

const issuer = "golden-feast"

type claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and parses tokens with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures Tokens.
type Option func(*Tokens)

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(t *Tokens) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tokens) { t.now = now }
}

// New creates Tokens. The secret must not be empty.
func New(secret string, opts ...Option) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	t := &Tokens{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue returns a signed token for id.
func (t *Tokens) Issue(id auth.Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	if _, err := auth.ParseRole(string(id.Role)); err != nil {
		return "", err
	}
	now := t.now()
	c := claims{
		UserID: id.UserID,
		Role:   string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse verifies token and returns the identity it carries. Every failure is
// reported as auth.ErrUnauthorized.
func (t *Tokens) Parse(token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return auth.Identity{}, errors.Wrap(auth.ErrUnauthorized, err.Error())
	}
	role, err := auth.ParseRole(c.Role)
	if err != nil || c.UserID == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return auth.Identity{UserID: c.UserID, Role: role}, nil
}
