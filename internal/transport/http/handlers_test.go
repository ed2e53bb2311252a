package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/auth"
	"github.com/skillguru/chat-server/internal/bridge"
	"github.com/skillguru/chat-server/internal/config"
	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/store"
)

type testServer struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
	hub   *core.Hub
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	testStore := createTestStore(t)
	authService := createTestAuthService(t, testStore, "test-secret")

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(&disabledLogger)
	br := bridge.New(testStore, time.Second, &disabledLogger)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	server := NewServer(hub, br, authService, testStore, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: testStore, auth: authService, hub: hub}
}

func (s *testServer) registerUser(t *testing.T, username string) string {
	t.Helper()

	token, err := s.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("failed to register user %s: %v", username, err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	s.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t)

	resp, err := srv.ts.Client().Get(srv.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	srv := startTestServer(t)

	resp := srv.do(t, http.MethodPost, "/api/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &authResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if authResp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	resp = srv.do(t, http.MethodPost, "/api/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	resp = srv.do(t, http.MethodPost, "/api/login", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = srv.do(t, http.MethodPost, "/api/login", "", `{"username":"alice","password":"wrong"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestCreateRoom(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "testuser")

	resp := srv.do(t, http.MethodPost, "/api/chat/rooms", token, `{"name":"my-test-room","room_type":"study","tags":["golang"]}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var roomResp RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &roomResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if roomResp.Name != "my-test-room" {
		t.Errorf("expected room name 'my-test-room', got '%s'", roomResp.Name)
	}
	if roomResp.Type != "study" {
		t.Errorf("expected room type 'study', got '%s'", roomResp.Type)
	}
	if !roomResp.Settings.AllowReactions {
		t.Error("expected default settings applied")
	}

	// Without a token.
	resp = srv.do(t, http.MethodPost, "/api/chat/rooms", "", `{"name":"should-fail"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}

	// Duplicate name.
	resp = srv.do(t, http.MethodPost, "/api/chat/rooms", token, `{"name":"my-test-room"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}

	// Missing name.
	resp = srv.do(t, http.MethodPost, "/api/chat/rooms", token, `{"description":"nameless"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestListRooms(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "testuser")

	createTestRoom(t, srv.store, "room1")
	createTestRoom(t, srv.store, "room2")

	resp := srv.do(t, http.MethodGet, "/api/chat/rooms", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var rooms []RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}

	roomNames := make(map[string]bool)
	for _, room := range rooms {
		roomNames[room.Name] = true
	}
	for _, name := range []string{"room1", "room2"} {
		if !roomNames[name] {
			t.Errorf("expected room '%s' not found in list", name)
		}
	}

	// Without a token.
	resp = srv.do(t, http.MethodGet, "/api/chat/rooms", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestDeactivateRoom(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "testuser")

	room := createTestRoom(t, srv.store, "doomed")

	resp := srv.do(t, http.MethodDelete, "/api/chat/rooms/"+room.ID, token, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", resp.Code, resp.Body.String())
	}

	got, err := srv.store.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Active {
		t.Fatal("room still active after delete")
	}

	resp = srv.do(t, http.MethodDelete, "/api/chat/rooms/no-such-room", token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestRoomMessages(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "testuser")

	room := createTestRoom(t, srv.store, "history")
	base := time.Now().UTC().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		msg := &store.Message{
			RoomID:     room.ID,
			SenderID:   "u1",
			SenderName: "alice",
			Content:    content,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := srv.store.InsertMessage(context.Background(), msg); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	resp := srv.do(t, http.MethodGet, "/api/chat/rooms/"+room.ID+"/messages", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var messages []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &messages); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0]["content"] != "first" || messages[2]["content"] != "third" {
		t.Fatalf("messages out of order: %v", messages)
	}

	// Unknown room.
	resp = srv.do(t, http.MethodGet, "/api/chat/rooms/no-such-room/messages", token, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	// Limit applies.
	resp = srv.do(t, http.MethodGet, "/api/chat/rooms/"+room.ID+"/messages?limit=2", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	messages = nil
	if err := json.Unmarshal(resp.Body.Bytes(), &messages); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	// The newest two, still chronological.
	if messages[0]["content"] != "second" || messages[1]["content"] != "third" {
		t.Fatalf("unexpected page: %v", messages)
	}
}

func TestOnlineUsersAndStats(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "testuser")

	resp := srv.do(t, http.MethodGet, "/api/chat/online-users", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var onlineResp struct {
		OnlineUsers []string `json:"online_users"`
		TotalCount  int      `json:"total_count"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &onlineResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if onlineResp.TotalCount != 0 {
		t.Fatalf("expected no online users, got %d", onlineResp.TotalCount)
	}

	// A registered connection shows up in both endpoints.
	client := core.NewClient("u-stats", "stats user")
	srv.hub.Connect(client)
	srv.hub.Join(client, "general")
	defer srv.hub.Disconnect(client)

	resp = srv.do(t, http.MethodGet, "/api/chat/online-users", token, "")
	if err := json.Unmarshal(resp.Body.Bytes(), &onlineResp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if onlineResp.TotalCount != 1 || onlineResp.OnlineUsers[0] != "u-stats" {
		t.Fatalf("unexpected online users: %+v", onlineResp)
	}

	resp = srv.do(t, http.MethodGet, "/api/chat/stats", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var stats core.Stats
	if err := json.Unmarshal(resp.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if stats.Connections != 1 || stats.ActiveRooms != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
