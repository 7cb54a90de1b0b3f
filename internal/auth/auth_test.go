package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kakeibo/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, time.Hour)
}

func TestSignupAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, token, err := svc.Signup(ctx, "  Mario@Example.com ", "Mario", "correcthorse")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Email != "mario@example.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if u.PasswordHash == "correcthorse" {
		t.Fatal("password stored in plaintext")
	}
	if token == "" {
		t.Fatal("expected session token")
	}

	got, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %d, got %d", u.ID, got.ID)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.Signup(context.Background(), "short@example.com", "S", "abc")
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "dup@example.com", "First", "correcthorse"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, _, err := svc.Signup(ctx, "dup@example.com", "Second", "correcthorse")
	if !errors.Is(err, storage.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginWrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Signup(ctx, "anna@example.com", "Anna", "correcthorse"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, _, errWrong := svc.Login(ctx, "anna@example.com", "wrongpassword")
	_, _, errUnknown := svc.Login(ctx, "nobody@example.com", "correcthorse")

	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, token, err := svc.Signup(ctx, "out@example.com", "Out", "correcthorse")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after logout, got %v", err)
	}
}

func TestEachLoginGetsFreshToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, first, err := svc.Signup(ctx, "fresh@example.com", "Fresh", "correcthorse")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, second, err := svc.Login(ctx, "fresh@example.com", "correcthorse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first == second {
		t.Error("expected a new token per login")
	}
	// Both sessions stay valid until logged out.
	if _, err := svc.Authenticate(ctx, first); err != nil {
		t.Errorf("first token rejected: %v", err)
	}
	if _, err := svc.Authenticate(ctx, second); err != nil {
		t.Errorf("second token rejected: %v", err)
	}
}
