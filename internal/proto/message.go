// Package proto defines the JSON envelopes exchanged over the WebSocket.
// Frames are decoded once at the boundary into a closed set of types;
// unknown tags are rejected, not silently ignored.
package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom  = "join_room"
	InboundTypeLeaveRoom = "leave_room"
	InboundTypeMessage   = "message"
	InboundTypeTyping    = "typing"
	InboundTypePing      = "ping"

	OutboundTypeMessage        = "message"
	OutboundTypeRecentMessages = "recent_messages"
	OutboundTypePong           = "pong"
	OutboundTypeError          = "error"
	OutboundTypeUserJoined     = "user_joined"
	OutboundTypeUserLeft       = "user_left"
	OutboundTypeTyping         = "typing"
)

// JoinRoomData requests joining or leaving a room.
type JoinRoomData struct {
	RoomID string `json:"room_id"`
}

// AttachmentData references an uploaded file on a message.
type AttachmentData struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ReactionData is one emoji reaction on a message.
type ReactionData struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	RoomID      string           `json:"room_id"`
	Content     string           `json:"content"`
	MessageType string           `json:"message_type,omitempty"`
	ReplyTo     *string          `json:"reply_to,omitempty"`
	Mentions    []string         `json:"mentions,omitempty"`
	Attachments []AttachmentData `json:"attachments,omitempty"`
}

// TypingData updates the sender's typing flag for a room.
type TypingData struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// MessagePayload is a persisted message as clients see it.
type MessagePayload struct {
	MessageID   string           `json:"message_id"`
	RoomID      string           `json:"room_id"`
	SenderID    string           `json:"sender_id"`
	SenderName  string           `json:"sender_name"`
	Content     string           `json:"content"`
	MessageType string           `json:"message_type"`
	Timestamp   string           `json:"timestamp"`
	IsEdited    bool             `json:"is_edited"`
	IsDeleted   bool             `json:"is_deleted"`
	ReplyTo     *string          `json:"reply_to,omitempty"`
	Mentions    []string         `json:"mentions"`
	Attachments []AttachmentData `json:"attachments"`
	Reactions   []ReactionData   `json:"reactions"`
}

// RecentMessagesPayload delivers history backfill after a join.
type RecentMessagesPayload struct {
	RoomID   string           `json:"room_id"`
	Messages []MessagePayload `json:"messages"`
}

// PongPayload answers a ping.
type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

// ErrorPayload describes a rejected action.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresencePayload notifies about a user joining or leaving a room.
type PresencePayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TypingPayload notifies about a typing-state change.
type TypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}
