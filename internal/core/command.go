package core

import "github.com/skillguru/chat-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendMessage persists a chat message and fans it out to room members.
	CommandSendMessage
	// CommandSetTyping updates the client's typing flag for a room.
	CommandSetTyping
	// CommandPing requests a pong reply.
	CommandPing
)

// Draft carries the client-supplied parts of a message before persistence
// assigns the durable fields.
type Draft struct {
	Content     string
	Type        store.MessageType
	ReplyTo     *string
	Mentions    []string
	Attachments []store.Attachment
}

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	Room   string
	Draft  Draft // for CommandSendMessage
	Typing bool  // for CommandSetTyping
}
