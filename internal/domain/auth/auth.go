// Package auth defines caller identities and the access rules applied to
// admin and customer resources.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when a credential is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a valid identity lacks access.
	ErrForbidden = errors.New("forbidden")
)

// Role is the coarse permission level of an identity.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole validates s.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleCustomer:
		return Role(s), nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanAccessCustomer reports whether the identity may read or act on the data
// of customerID. Admins may access every customer.
func (i Identity) CanAccessCustomer(customerID string) bool {
	if i.IsAdmin() {
		return true
	}
	return customerID != "" && i.UserID == customerID
}

// TokenParser validates a bearer token and returns its identity.
type TokenParser interface {
	Parse(token string) (Identity, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
