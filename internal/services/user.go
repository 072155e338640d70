package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
	"go.uber.org/zap"
)

const minPasswordLength = 6

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// RegisterInput is a registration request. Role is optional.
type RegisterInput struct {
	Email    string
	Password string
	Role     types.Role
}

// UserService encapsulates registration, login and identity resolution.
type UserService struct {
	repo             UserRepository
	tokens           *auth.TokenManager
	hasher           auth.Hasher
	allowAdminSignup bool
	logger           *zap.Logger

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one hash comparison.
	dummyHash string
}

// UserServiceOption configures a UserService.
type UserServiceOption func(*UserService)

// WithAdminSignup allows registration requests to claim the admin role.
func WithAdminSignup(allow bool) UserServiceOption {
	return func(s *UserService) { s.allowAdminSignup = allow }
}

// WithUserLogger sets the logger used by the service.
func WithUserLogger(logger *zap.Logger) UserServiceOption {
	return func(s *UserService) { s.logger = logger }
}

func NewUserService(repo UserRepository, tokens *auth.TokenManager, hasher auth.Hasher, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if hash, err := hasher.Hash("not-a-real-password"); err == nil {
		s.dummyHash = hash
	}
	return s
}

// Register creates an account and returns it with a fresh token.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	in.Email = strings.TrimSpace(in.Email)

	verr := &ValidationError{}
	if !validEmail(in.Email) {
		verr.Add("email", "Please provide a valid email")
	}
	if len(in.Password) < minPasswordLength {
		verr.Add("password", "Password must be at least 6 characters long")
	}
	if in.Role != "" && !in.Role.Valid() {
		verr.Add("role", "Role must be either user or admin")
	}
	if err := verr.OrNil(); err != nil {
		return types.User{}, "", err
	}

	if in.Role == "" {
		in.Role = types.RoleUser
	}
	if in.Role == types.RoleAdmin && !s.allowAdminSignup {
		return types.User{}, "", ErrForbidden
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, "", ErrEmailTaken
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return types.User{}, "", err
	}

	s.logger.Info("user registered", zap.String("user.id", user.ID), zap.String("user.role", string(user.Role)))
	return user, token, nil
}

// Login checks credentials and returns the user with a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	email = strings.TrimSpace(email)

	verr := &ValidationError{}
	if !validEmail(email) {
		verr.Add("email", "Please provide a valid email")
	}
	if password == "" {
		verr.Add("password", "Password is required")
	}
	if err := verr.OrNil(); err != nil {
		return types.User{}, "", err
	}

	user, err := s.AuthenticateCredentials(ctx, email, password)
	if err != nil {
		return types.User{}, "", err
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// AuthenticateCredentials returns the user owning email when password
// matches. An unknown email and a wrong password both yield
// ErrInvalidCredentials.
func (s *UserService) AuthenticateCredentials(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if s.dummyHash != "" {
				_ = s.hasher.Compare(s.dummyHash, password)
			}
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	return user, nil
}

// Identify resolves a bearer token to the caller's identity. The role is
// read from the user record, so a token for a deleted user is rejected.
func (s *UserService) Identify(ctx context.Context, token string) (auth.Identity, error) {
	userID, err := s.tokens.VerifyToken(token)
	if err != nil {
		return auth.Identity{}, ErrUnauthenticated
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Identity{}, ErrUnauthenticated
		}
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: user.ID, Role: user.Role}, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func validEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
