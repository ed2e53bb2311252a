package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillguru/chat-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegister_DerivesDisplayNameFromEmail(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}

	user, err := svc.UserFromToken(ctx, token)
	if err != nil {
		t.Fatalf("user from token: %v", err)
	}
	if user.DisplayName != "alice" {
		t.Fatalf("expected display name alice, got %q", user.DisplayName)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("expected login success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUserFromToken(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := svc.UserFromToken(ctx, token)
	if err != nil {
		t.Fatalf("user from token: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.UserFromToken(ctx, "not-a-token"); err == nil {
		t.Fatal("expected error for garbage token")
	}

	// A token signed with another secret is rejected.
	other := &JWTConfig{
		Secret:   []byte("different-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	forged, err := GenerateToken(other, user.ID, user.Username)
	if err != nil {
		t.Fatalf("generate forged token: %v", err)
	}
	if _, err := svc.UserFromToken(ctx, forged); err == nil {
		t.Fatal("expected error for token with wrong signature")
	}
}
