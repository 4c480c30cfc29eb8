package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_CanAccessCustomer(t *testing.T) {
	admin := Identity{UserID: "a1", Role: RoleAdmin}
	customer := Identity{UserID: "c1", Role: RoleCustomer}

	assert.True(t, admin.CanAccessCustomer("c1"))
	assert.True(t, admin.CanAccessCustomer(""))
	assert.True(t, customer.CanAccessCustomer("c1"))
	assert.False(t, customer.CanAccessCustomer("c2"))
	assert.False(t, customer.CanAccessCustomer(""))
	assert.False(t, Identity{}.CanAccessCustomer(""))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	require.Error(t, err)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "c1", Role: RoleCustomer})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "c1", id.UserID)
}
