package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/skillguru/chat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/login")
	room := flag.String("room", "general", "room id to join")
	flag.Parse()

	if *token == "" {
		return errors.New("missing -token (obtain one via POST /api/login)")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	dialURL, err := withToken(*addr, *token)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinRoomData{RoomID: *room})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoinRoom, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Connected to %s, joined room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// withToken appends the token query parameter to the dial URL.
func withToken(addr, token string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var raw struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch raw.Type {
		case proto.OutboundTypeMessage:
			var evt proto.MessagePayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", evt.RoomID, evt.SenderName, evt.Content)
		case proto.OutboundTypeRecentMessages:
			var evt proto.RecentMessagesPayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal recent_messages: %v", err)
				continue
			}
			for _, msg := range evt.Messages {
				fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.SenderName, msg.Content)
			}
		case proto.OutboundTypeUserJoined:
			var evt proto.PresencePayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal user_joined: %v", err)
				continue
			}
			fmt.Printf("[room %s] %s joined\n", evt.RoomID, evt.Username)
		case proto.OutboundTypeUserLeft:
			var evt proto.PresencePayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal user_left: %v", err)
				continue
			}
			fmt.Printf("[room %s] %s left\n", evt.RoomID, evt.Username)
		case proto.OutboundTypeTyping:
			var evt proto.TypingPayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal typing: %v", err)
				continue
			}
			if evt.IsTyping {
				fmt.Printf("[room %s] %s is typing...\n", evt.RoomID, evt.UserID)
			}
		case proto.OutboundTypeError:
			var evt proto.ErrorPayload
			if err := json.Unmarshal(raw.Data, &evt); err != nil {
				log.Printf("unmarshal error: %v", err)
				continue
			}
			fmt.Printf("server error [%s]: %s\n", evt.Code, evt.Message)
		default:
			fmt.Printf("event=%s data=%s\n", raw.Type, string(raw.Data))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.MessageData{RoomID: room, Content: text})
			if err != nil {
				log.Printf("marshal message: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
