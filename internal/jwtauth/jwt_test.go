package jwtauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/golden-feast/internal/domain/auth"
)

func TestIssueParse(t *testing.T) {
	tokens, err := New("s3cret")
	require.NoError(t, err)

	tok, err := tokens.Issue(auth.Identity{UserID: "c1", Role: auth.RoleCustomer})
	require.NoError(t, err)

	id, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "c1", id.UserID)
	assert.Equal(t, auth.RoleCustomer, id.Role)
}

func TestParse_Rejects(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tokens, err := New("s3cret", WithTTL(time.Hour), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	valid, err := tokens.Issue(auth.Identity{UserID: "a1", Role: auth.RoleAdmin})
	require.NoError(t, err)

	other, err := New("other", WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	foreign, err := other.Issue(auth.Identity{UserID: "a1", Role: auth.RoleAdmin})
	require.NoError(t, err)

	later, err := New("s3cret", WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "a1", "role": "admin", "iss": issuer, "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		parser *Tokens
		token  string
	}{
		{name: "empty", parser: tokens, token: ""},
		{name: "garbage", parser: tokens, token: "not.a.token"},
		{name: "wrong secret", parser: tokens, token: foreign},
		{name: "expired", parser: later, token: valid},
		{name: "alg none", parser: tokens, token: none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parser.Parse(tt.token)
			require.ErrorIs(t, err, auth.ErrUnauthorized)
		})
	}
}

func TestIssue_Validation(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	tokens, err := New("s3cret")
	require.NoError(t, err)

	_, err = tokens.Issue(auth.Identity{Role: auth.RoleAdmin})
	require.Error(t, err)
	_, err = tokens.Issue(auth.Identity{UserID: "u1", Role: "root"})
	require.Error(t, err)
}
