package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skillguru/chat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when a username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserInactive is returned when the token's user has been deactivated.
	ErrUserInactive = errors.New("user inactive")
)

// Service provides authentication operations. Token validation is a lookup
// against the user store, not a protocol of its own.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
// The display name derives from the username.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return "", ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	user := &store.User{
		Username:     username,
		DisplayName:  displayNameFor(username),
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	return GenerateToken(s.jwtConfig, user.ID, user.Username)
}

// Login verifies credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return GenerateToken(s.jwtConfig, user.ID, user.Username)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// UserFromToken validates the token and resolves the user against the store.
func (s *Service) UserFromToken(ctx context.Context, tokenString string) (*store.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup token user: %w", err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	return user, nil
}

// displayNameFor derives a display name from a username; for email-style
// usernames the local part is used.
func displayNameFor(username string) string {
	if at := strings.IndexByte(username, '@'); at > 0 {
		return username[:at]
	}
	return username
}
