package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNameConflict is returned when a room name collides with an active room.
	ErrNameConflict = errors.New("name conflict")
)

// User represents a registered user.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// RoomType defines different kinds of rooms.
type RoomType string

const (
	RoomTypeGeneral RoomType = "general"
	RoomTypeStudy   RoomType = "study"
	RoomTypeCareer  RoomType = "career"
	RoomTypePrivate RoomType = "private"
)

// RoomSettings holds per-room behavior switches.
type RoomSettings struct {
	AllowFileUpload bool `json:"allow_file_upload"`
	AllowReactions  bool `json:"allow_reactions"`
	Moderated       bool `json:"moderated"`
}

// DefaultRoomSettings returns the settings applied when a creation request
// omits them.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowFileUpload: true,
		AllowReactions:  true,
		Moderated:       false,
	}
}

// Room is the durable room record. The member roster here is the
// slower-changing persisted roster, not the session-scoped membership the hub
// tracks. Rooms are deactivated, never physically removed.
type Room struct {
	ID           string
	Name         string
	Description  string
	Type         RoomType
	Public       bool
	Members      []string
	Moderators   []string
	MaxMembers   int
	Settings     RoomSettings
	Tags         []string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastActivity time.Time
	Active       bool
}

// MessageType classifies message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Attachment references an uploaded file linked to a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Reaction is a single emoji reaction on a message.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is the durable chat message. Content is immutable after creation;
// only the edited/deleted flags may change.
type Message struct {
	ID          string
	RoomID      string
	SenderID    string
	SenderName  string
	Content     string
	Type        MessageType
	CreatedAt   time.Time
	Edited      bool
	Deleted     bool
	ReplyTo     *string
	Mentions    []string
	Attachments []Attachment
	Reactions   []Reaction
}

// RoomFilter narrows a room listing.
type RoomFilter struct {
	Type   RoomType // empty matches all types
	Search string   // free-text match against name and description
	Limit  int
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. An empty ID is assigned by the store.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom persists a new room. An empty ID is assigned by the store.
	// Returns ErrNameConflict when an active room already uses the name.
	CreateRoom(ctx context.Context, room *Room) error

	// GetRoom retrieves a room by ID.
	GetRoom(ctx context.Context, id string) (*Room, error)

	// GetRoomByName retrieves an active room by name.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// ListRooms lists active rooms matching the filter, most recently
	// active first.
	ListRooms(ctx context.Context, filter RoomFilter) ([]*Room, error)

	// AddRosterMember adds a user to the room's persisted roster. Adding an
	// existing member is a no-op.
	AddRosterMember(ctx context.Context, roomID, userID string) error

	// TouchRoomActivity updates the room's last-activity timestamp.
	TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error

	// DeactivateRoom flips the room's active flag off.
	DeactivateRoom(ctx context.Context, roomID string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message. An empty ID is assigned by the store.
	InsertMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListRecentMessages returns up to limit non-deleted messages for the
	// room in chronological order, picked from the newest end. When before
	// is set, only messages strictly older than it are included.
	ListRecentMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*Message, error)

	// MarkMessageDeleted soft-deletes a message; the record is kept.
	MarkMessageDeleted(ctx context.Context, id string) error

	// MarkMessageEdited flags a message as edited.
	MarkMessageEdited(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Ping reports whether the underlying database is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
