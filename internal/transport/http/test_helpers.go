package http

import (
	"context"
	"testing"
	"time"

	"github.com/skillguru/chat-server/internal/auth"
	"github.com/skillguru/chat-server/internal/store"
	"github.com/skillguru/chat-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestRoom inserts an active room and returns it.
func createTestRoom(t *testing.T, st store.Store, name string) *store.Room {
	t.Helper()

	room := &store.Room{
		Name:     name,
		Type:     store.RoomTypeGeneral,
		Public:   true,
		Settings: store.DefaultRoomSettings(),
		Active:   true,
	}
	if err := st.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("failed to create test room: %v", err)
	}
	return room
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}
