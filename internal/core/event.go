package core

import (
	"time"

	"github.com/skillguru/chat-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage notifies room members about a persisted chat message.
	EventMessage EventKind = iota
	// EventRecentMessages delivers history backfill after a room join.
	EventRecentMessages
	// EventUserJoined notifies members that a user joined the room.
	EventUserJoined
	// EventUserLeft notifies members that a user left the room.
	EventUserLeft
	// EventTyping notifies members about a typing-state change.
	EventTyping
	// EventPong answers a ping.
	EventPong
	// EventError notifies a client about a rejected action.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     string // user id the event is about
	Username string // display name of that user
	Typing   bool
	At       time.Time
	Message  *store.Message
	Messages []*store.Message // for EventRecentMessages
	Error    *CoreError
}
