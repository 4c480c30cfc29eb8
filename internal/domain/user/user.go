// Package user holds storefront accounts and the password login that hands
// out bearer tokens.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/golden-feast/internal/domain/auth"
)

var (
	// ErrInvalidInput is the root of registration validation failures.
	ErrInvalidInput = errors.New("invalid user input")
	// ErrNotFound is returned when no account has the requested email.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an account already uses the email.
	ErrEmailTaken = errors.New("user exists")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrMissingEmail  = fmt.Errorf("%w: email required", ErrInvalidInput)
	ErrShortPassword = fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLen)
	ErrLongPassword  = fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordLen)
)

const (
	MinPasswordLen = 6
	// MaxPasswordLen is the bcrypt input limit.
	MaxPasswordLen = 72
)

// User is a registered account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
}

// Identity returns the token identity of u.
func (u *User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository stores accounts. Emails are stored normalized and unique.
type Repository interface {
	// Create fails with ErrEmailTaken when the email is in use.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// TokenIssuer signs bearer tokens for identities.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}
