package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/golden-feast/internal/domain/auth"
)

// Registration is the input of Register.
type Registration struct {
	Name     string
	Email    string
	Password string
	// Role defaults to customer.
	Role auth.Role
}

// Service registers accounts and logs them in.
type Service struct {
	users  Repository
	tokens TokenIssuer
	cost   int
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides account id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(users Repository, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	email := NormalizeEmail(r.Email)
	switch {
	case email == "":
		return nil, ErrMissingEmail
	case len(r.Password) < MinPasswordLen:
		return nil, ErrShortPassword
	case len(r.Password) > MaxPasswordLen:
		return nil, ErrLongPassword
	}
	role := r.Role
	if role == "" {
		role = auth.RoleCustomer
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := &User{
		ID:           s.newID(),
		Name:         r.Name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login checks the password and returns a signed token for the account.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, ErrNotFound):
		return "", nil, ErrInvalidCredentials
	case err != nil:
		return "", nil, errors.Wrap(err, "get user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return "", nil, errors.Wrap(err, "issue token")
	}
	return token, u, nil
}
