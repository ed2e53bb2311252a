package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/skillguru/chat-server/internal/proto"
)

type testFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, ctx context.Context, srv *testServer, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(srv.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", frameType, err)
	}
}

// mustFrame reads frames until one of the wanted type arrives.
func mustFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string) json.RawMessage {
	t.Helper()

	for {
		var frame testFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for %s: %v", frameType, err)
		}
		if frame.Type == frameType {
			return frame.Data
		}
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(srv.ts.URL, "http", "ws", 1) + "/ws"
	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("expected handshake to fail without token")
	}
}

func TestWebSocketJoinAndMessage(t *testing.T) {
	srv := startTestServer(t)
	aliceToken := srv.registerUser(t, "alice@example.com")
	bobToken := srv.registerUser(t, "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, srv, aliceToken)
	connB := dialWS(t, ctx, srv, bobToken)

	sendFrame(t, ctx, connA, proto.InboundTypeJoinRoom, proto.JoinRoomData{RoomID: "general"})
	mustFrame(t, ctx, connA, proto.OutboundTypeRecentMessages)

	sendFrame(t, ctx, connB, proto.InboundTypeJoinRoom, proto.JoinRoomData{RoomID: "general"})
	mustFrame(t, ctx, connB, proto.OutboundTypeRecentMessages)

	// Alice, already in the room, sees bob arrive.
	var joined proto.PresencePayload
	if err := json.Unmarshal(mustFrame(t, ctx, connA, proto.OutboundTypeUserJoined), &joined); err != nil {
		t.Fatalf("unmarshal user_joined: %v", err)
	}
	if joined.RoomID != "general" || joined.Username != "bob" {
		t.Fatalf("unexpected presence payload: %+v", joined)
	}

	sendFrame(t, ctx, connA, proto.InboundTypeMessage, proto.MessageData{RoomID: "general", Content: "hi there"})

	var msg proto.MessagePayload
	if err := json.Unmarshal(mustFrame(t, ctx, connB, proto.OutboundTypeMessage), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Content != "hi there" || msg.RoomID != "general" || msg.SenderName != "alice" {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
	if msg.MessageID == "" {
		t.Fatal("message not assigned an id")
	}

	// The sender receives the fan-out of their own message.
	if err := json.Unmarshal(mustFrame(t, ctx, connA, proto.OutboundTypeMessage), &msg); err != nil {
		t.Fatalf("unmarshal own message: %v", err)
	}
	if msg.Content != "hi there" {
		t.Fatalf("unexpected own message payload: %+v", msg)
	}
}

func TestWebSocketTyping(t *testing.T) {
	srv := startTestServer(t)
	aliceToken := srv.registerUser(t, "alice@example.com")
	bobToken := srv.registerUser(t, "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, srv, aliceToken)
	connB := dialWS(t, ctx, srv, bobToken)

	sendFrame(t, ctx, connA, proto.InboundTypeJoinRoom, proto.JoinRoomData{RoomID: "general"})
	mustFrame(t, ctx, connA, proto.OutboundTypeRecentMessages)
	sendFrame(t, ctx, connB, proto.InboundTypeJoinRoom, proto.JoinRoomData{RoomID: "general"})
	mustFrame(t, ctx, connB, proto.OutboundTypeRecentMessages)

	sendFrame(t, ctx, connA, proto.InboundTypeTyping, proto.TypingData{RoomID: "general", IsTyping: true})

	var typing proto.TypingPayload
	if err := json.Unmarshal(mustFrame(t, ctx, connB, proto.OutboundTypeTyping), &typing); err != nil {
		t.Fatalf("unmarshal typing: %v", err)
	}
	if !typing.IsTyping || typing.RoomID != "general" {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}

	sendFrame(t, ctx, connA, proto.InboundTypeTyping, proto.TypingData{RoomID: "general", IsTyping: false})
	if err := json.Unmarshal(mustFrame(t, ctx, connB, proto.OutboundTypeTyping), &typing); err != nil {
		t.Fatalf("unmarshal typing: %v", err)
	}
	if typing.IsTyping {
		t.Fatalf("expected stopped-typing, got %+v", typing)
	}
}

func TestWebSocketRejectsUnknownFrames(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "alice@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv, token)

	// An unknown tag yields an error frame; the connection survives.
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "warp_drive"}); err != nil {
		t.Fatalf("write unknown frame: %v", err)
	}

	var errPayload proto.ErrorPayload
	if err := json.Unmarshal(mustFrame(t, ctx, conn, proto.OutboundTypeError), &errPayload); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if errPayload.Code != "malformed_input" {
		t.Fatalf("unexpected error code: %+v", errPayload)
	}

	// Non-JSON input is handled the same way.
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := json.Unmarshal(mustFrame(t, ctx, conn, proto.OutboundTypeError), &errPayload); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if errPayload.Code != "malformed_input" {
		t.Fatalf("unexpected error code: %+v", errPayload)
	}

	// Still usable afterwards.
	sendFrame(t, ctx, conn, proto.InboundTypePing, struct{}{})
	mustFrame(t, ctx, conn, proto.OutboundTypePong)
}

func TestWebSocketSendWithoutJoin(t *testing.T) {
	srv := startTestServer(t)
	token := srv.registerUser(t, "alice@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, srv, token)

	sendFrame(t, ctx, conn, proto.InboundTypeMessage, proto.MessageData{RoomID: "general", Content: "hi"})

	var errPayload proto.ErrorPayload
	if err := json.Unmarshal(mustFrame(t, ctx, conn, proto.OutboundTypeError), &errPayload); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if errPayload.Code != "not_in_room" {
		t.Fatalf("unexpected error code: %+v", errPayload)
	}
}
