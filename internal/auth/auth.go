// Package auth implements signup, login and bearer-token sessions.
// Tokens are opaque random values stored server-side, so logout and
// expiry cleanup work without any client cooperation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// Service handles user registration and session management.
type Service struct {
	storage    storage.Repository
	sessionTTL time.Duration
}

func NewService(st storage.Repository, sessionTTL time.Duration) *Service {
	return &Service{
		storage:    st,
		sessionTTL: sessionTTL,
	}
}

// Signup registers a new user and opens a session for them.
func (s *Service) Signup(ctx context.Context, email, name, password string) (core.User, string, error) {
	if len(password) < minPasswordLength {
		return core.User{}, "", ErrPasswordTooShort
	}
	u := core.User{
		Email: strings.ToLower(strings.TrimSpace(email)),
		Name:  strings.TrimSpace(name),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	created, err := s.storage.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, "", err
	}

	token, err := s.openSession(ctx, created.ID)
	if err != nil {
		return core.User{}, "", err
	}
	slog.InfoContext(ctx, "User registered", "user_id", created.ID)
	return created, token, nil
}

// Login verifies the password and opens a new session. Unknown emails and
// wrong passwords report the same error.
func (s *Service) Login(ctx context.Context, email, password string) (core.User, string, error) {
	u, err := s.storage.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return core.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return core.User{}, "", ErrInvalidCredentials
	}

	token, err := s.openSession(ctx, u.ID)
	if err != nil {
		return core.User{}, "", err
	}
	slog.InfoContext(ctx, "User logged in", "user_id", u.ID)
	return u, token, nil
}

// Logout invalidates the given session token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.storage.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		return core.User{}, storage.ErrNotFound
	}
	return s.storage.GetSessionUser(ctx, token)
}

// CleanupExpiredSessions removes sessions past their expiry.
func (s *Service) CleanupExpiredSessions(ctx context.Context) error {
	n, err := s.storage.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expired sessions removed", "count", n)
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, userID int64) (string, error) {
	// Two UUIDs back to back give 256 bits of randomness.
	token := uuid.NewString() + uuid.NewString()
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.storage.CreateSession(ctx, token, userID, expiresAt); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}
