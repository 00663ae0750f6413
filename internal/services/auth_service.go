package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"encargos/internal/auth"
	"encargos/internal/core"
	"encargos/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email already registered")
)

// Session is an authenticated user with a signed token.
type Session struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	users      store.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users store.UserRepository, tokens *auth.TokenManager, bcryptCost int) *AuthService {
	return &AuthService{users: users, tokens: tokens, bcryptCost: bcryptCost, now: time.Now}
}

func normalizeEmail(s string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp registers a user and opens a session.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, invalid(err)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return Session{}, invalid(err)
		}
		return Session{}, err
	}
	u := core.User{
		ID:           core.UserID(uuid.NewString()),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Session{}, invalid(ErrEmailTaken)
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.issue(u)
}

// SignIn checks the credentials. Unknown emails and wrong passwords yield
// the same ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(u)
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.users.GetUser(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.User{}, auth.ErrInvalidToken
		}
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *AuthService) issue(u core.User) (Session, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: u, Token: token, ExpiresAt: exp}, nil
}
