package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/golden-feast/internal/domain/auth"
	"github.com/xenking/golden-feast/internal/domain/user"
	"github.com/xenking/golden-feast/internal/jwtauth"
	"github.com/xenking/golden-feast/internal/storage/memory"
)

func TestMintToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, mintToken(&out, "secret", "admin-1", "admin", time.Hour))

	tokens, err := jwtauth.New("secret")
	require.NoError(t, err)
	id, err := tokens.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}, id)

	require.Error(t, mintToken(&out, "secret", "u1", "root", time.Hour))
	require.Error(t, mintToken(&out, "", "u1", "customer", time.Hour))
}

func TestRootCmd_Token(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "customer-42", "--secret", "s3cret", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out.String()), ".")))
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	svc := user.NewService(repo, nil, user.WithHashCost(bcrypt.MinCost), user.WithIDGenerator(func() string { return "admin-1" }))

	var out bytes.Buffer
	require.NoError(t, createUser(ctx, &out, svc, user.Registration{
		Email: "Chef@Example.com", Password: "kitchen", Role: auth.RoleAdmin,
	}))
	assert.Equal(t, "admin-1\tchef@example.com\tadmin\n", out.String())

	u, err := repo.GetByEmail(ctx, "chef@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, u.Role)

	err = createUser(ctx, &out, svc, user.Registration{Email: "chef@example.com", Password: "kitchen"})
	require.ErrorIs(t, err, user.ErrEmailTaken)
}
