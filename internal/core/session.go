package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/store"
)

// PersistenceBridge is the seam between the session layer and durable
// storage. Persist-success gates broadcast: a message that could not be
// appended is never fanned out.
type PersistenceBridge interface {
	// AppendMessage durably stores the message and assigns its identifier.
	AppendMessage(ctx context.Context, msg *store.Message) (*store.Message, error)

	// RecentMessages returns the room's newest non-deleted messages in
	// chronological order. beforeID, when non-empty, restricts the result
	// to messages strictly older than the referenced message.
	RecentMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error)

	// AddRosterMember records the user on the room's persisted roster.
	AddRosterMember(ctx context.Context, roomID, userID string) error

	// TouchRoomActivity updates the room's last-activity timestamp.
	TouchRoomActivity(ctx context.Context, roomID string) error
}

// Session drives the lifecycle of one connection: it consumes the client's
// decoded commands strictly in order (one handled to completion before the
// next), which yields per-user FIFO semantics, and it is the task that blocks
// on durable-store calls so a slow store never stalls other connections.
type Session struct {
	hub          *Hub
	bridge       PersistenceBridge
	client       *Client
	historyLimit int
	log          *zerolog.Logger
}

// NewSession builds a session for a registered client.
func NewSession(hub *Hub, bridge PersistenceBridge, client *Client, historyLimit int, logger *zerolog.Logger) *Session {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Session{
		hub:          hub,
		bridge:       bridge,
		client:       client,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// Run processes commands until the context is canceled or the client is torn
// down. It does not unregister the client; the owner of the connection calls
// Hub.Disconnect when the transport closes.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.client.Done():
			return
		case cmd := <-s.client.Commands:
			s.handle(ctx, cmd)
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinRoom:
		s.handleJoin(ctx, cmd.Room)
	case CommandLeaveRoom:
		s.handleLeave(cmd.Room)
	case CommandSendMessage:
		s.handleSend(ctx, cmd.Room, cmd.Draft)
	case CommandSetTyping:
		s.handleTyping(cmd.Room, cmd.Typing)
	case CommandPing:
		s.client.deliver(&Event{Kind: EventPong, At: time.Now().UTC()})
	default:
		s.log.Warn().Str("user_id", s.client.ID).Int("kind", int(cmd.Kind)).Msg("unknown command kind")
	}
}

func (s *Session) handleJoin(ctx context.Context, roomID string) {
	if roomID == "" {
		s.reject(ErrCodeBadRequest, "room_id is required")
		return
	}
	if !s.hub.Join(s.client, roomID) {
		// Already a member; joining twice is a no-op.
		s.log.Debug().Str("user_id", s.client.ID).Str("room_id", roomID).Msg("duplicate join ignored")
		return
	}

	// Record the user on the durable roster. Session membership does not
	// depend on it.
	if err := s.bridge.AddRosterMember(ctx, roomID, s.client.ID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("roster update failed")
	}

	// Backfill the client with recent history. A storage failure degrades to
	// an empty backfill rather than dropping the connection.
	messages, err := s.bridge.RecentMessages(ctx, roomID, s.historyLimit, "")
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("history backfill failed")
		messages = nil
	}
	s.client.deliver(&Event{
		Kind:     EventRecentMessages,
		Room:     roomID,
		Messages: messages,
	})
}

func (s *Session) handleLeave(roomID string) {
	if roomID == "" {
		s.reject(ErrCodeBadRequest, "room_id is required")
		return
	}
	if !s.hub.Leave(s.client, roomID) {
		s.log.Debug().Str("user_id", s.client.ID).Str("room_id", roomID).Msg("leave of room not joined")
	}
}

func (s *Session) handleSend(ctx context.Context, roomID string, draft Draft) {
	content := strings.TrimSpace(draft.Content)
	if roomID == "" || (content == "" && len(draft.Attachments) == 0) {
		s.reject(ErrCodeBadRequest, "room_id and content are required")
		return
	}
	if !s.hub.IsMember(s.client.ID, roomID) {
		s.reject(ErrCodeNotInRoom, "join the room before sending")
		return
	}

	msg := &store.Message{
		RoomID:      roomID,
		SenderID:    s.client.ID,
		SenderName:  s.client.Name,
		Content:     content,
		Type:        draft.Type,
		CreatedAt:   time.Now().UTC(),
		ReplyTo:     draft.ReplyTo,
		Mentions:    draft.Mentions,
		Attachments: draft.Attachments,
	}

	persisted, err := s.bridge.AppendMessage(ctx, msg)
	if err != nil {
		// Do not broadcast what was not saved.
		s.log.Error().Err(err).Str("user_id", s.client.ID).Str("room_id", roomID).Msg("message append failed")
		s.reject(ErrCodeStorageUnavailable, "message could not be saved")
		return
	}

	if err := s.bridge.TouchRoomActivity(ctx, roomID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("touch room activity failed")
	}

	s.hub.BroadcastToRoom(roomID, &Event{
		Kind:    EventMessage,
		Room:    roomID,
		User:    persisted.SenderID,
		Message: persisted,
	})
}

func (s *Session) handleTyping(roomID string, isTyping bool) {
	if roomID == "" {
		s.reject(ErrCodeBadRequest, "room_id is required")
		return
	}
	if !s.hub.SetTyping(s.client, roomID, isTyping) {
		s.reject(ErrCodeNotInRoom, "join the room before typing")
	}
}

func (s *Session) reject(code, msg string) {
	s.client.deliver(&Event{
		Kind:  EventError,
		Error: coreError(code, msg),
	})
}
