package memory

import (
	"context"
	"sync"

	"github.com/xenking/golden-feast/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository keeps accounts keyed by email.
type UserRepository struct {
	mu      sync.RWMutex
	byEmail map[string]user.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byEmail: make(map[string]user.User)}
}

func (r *UserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return user.ErrEmailTaken
	}
	r.byEmail[u.Email] = *u
	return nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}
