package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/skillguru/chat-server/internal/store"
	"github.com/skillguru/chat-server/internal/utils"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_rooms (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT 'general',
	public        BOOLEAN NOT NULL DEFAULT 1,
	members       TEXT NOT NULL DEFAULT '[]',
	moderators    TEXT NOT NULL DEFAULT '[]',
	max_members   INTEGER NOT NULL DEFAULT 0,
	settings      TEXT NOT NULL DEFAULT '{}',
	tags          TEXT NOT NULL DEFAULT '[]',
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_rooms_active_name
	ON chat_rooms(name) WHERE active = 1;

CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	content     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'text',
	created_at  DATETIME NOT NULL,
	edited      BOOLEAN NOT NULL DEFAULT 0,
	deleted     BOOLEAN NOT NULL DEFAULT 0,
	reply_to    TEXT,
	mentions    TEXT NOT NULL DEFAULT '[]',
	attachments TEXT NOT NULL DEFAULT '[]',
	reactions   TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_messages_room_time
	ON messages(room_id, created_at DESC, seq DESC);
`

// New creates a new SQLite store and ensures the schema exists.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser persists a new user, assigning an ID when none is set.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = utils.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, username, display_name, password_hash, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.DisplayName, user.PasswordHash, user.Active, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, active, created_at
		FROM users
		WHERE ` + where

	var u store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ==== RoomStore implementation ====

// CreateRoom persists a new room, assigning an ID when none is set.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) error {
	if room.ID == "" {
		room.ID = utils.NewID()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}
	if room.LastActivity.IsZero() {
		room.LastActivity = room.CreatedAt
	}

	members, err := marshalJSON(room.Members)
	if err != nil {
		return err
	}
	moderators, err := marshalJSON(room.Moderators)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tags, err := marshalJSON(room.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO chat_rooms (
			id, name, description, type, public, members, moderators,
			max_members, settings, tags, created_by,
			created_at, updated_at, last_activity, active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		room.ID, room.Name, room.Description, string(room.Type), room.Public,
		string(members), string(moderators), room.MaxMembers, string(settings),
		string(tags), room.CreatedBy,
		room.CreatedAt, room.UpdatedAt, room.LastActivity, room.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrNameConflict
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*store.Room, error) {
	rooms, err := s.queryRooms(ctx, "WHERE id = ?", 1, id)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, store.ErrNotFound
	}
	return rooms[0], nil
}

// GetRoomByName retrieves an active room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	rooms, err := s.queryRooms(ctx, "WHERE name = ? AND active = 1", 1, name)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, store.ErrNotFound
	}
	return rooms[0], nil
}

// ListRooms lists active rooms matching the filter, most recently active first.
func (s *SQLiteStore) ListRooms(ctx context.Context, filter store.RoomFilter) ([]*store.Room, error) {
	where := "WHERE active = 1"
	args := []any{}

	if filter.Type != "" {
		where += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	return s.queryRooms(ctx, where+" ORDER BY last_activity DESC", limit, args...)
}

func (s *SQLiteStore) queryRooms(ctx context.Context, whereOrder string, limit int, args ...any) ([]*store.Room, error) {
	query := `
		SELECT id, name, description, type, public, members, moderators,
		       max_members, settings, tags, created_by,
		       created_at, updated_at, last_activity, active
		FROM chat_rooms ` + whereOrder + " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var (
			r                                 store.Room
			roomType                          string
			members, moderators, settingsJSON string
			tags                              string
		)
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Description, &roomType, &r.Public,
			&members, &moderators, &r.MaxMembers, &settingsJSON, &tags,
			&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.LastActivity, &r.Active,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.Type = store.RoomType(roomType)
		if err := unmarshalJSON(members, &r.Members); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(moderators, &r.Moderators); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(settingsJSON, &r.Settings); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(tags, &r.Tags); err != nil {
			return nil, err
		}
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

// AddRosterMember adds a user to the room's persisted roster.
func (s *SQLiteStore) AddRosterMember(ctx context.Context, roomID, userID string) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range room.Members {
		if m == userID {
			return nil
		}
	}
	members, err := marshalJSON(append(room.Members, userID))
	if err != nil {
		return err
	}

	query := `UPDATE chat_rooms SET members = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(members), time.Now().UTC(), roomID); err != nil {
		return fmt.Errorf("update roster: %w", err)
	}
	return nil
}

// TouchRoomActivity updates the room's last-activity timestamp.
func (s *SQLiteStore) TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error {
	query := `UPDATE chat_rooms SET last_activity = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, at.UTC(), at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeactivateRoom flips the room's active flag off.
func (s *SQLiteStore) DeactivateRoom(ctx context.Context, roomID string) error {
	query := `UPDATE chat_rooms SET active = 0, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), roomID)
	if err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message, assigning an ID when none is set.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	} else {
		msg.CreatedAt = msg.CreatedAt.UTC()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}

	mentions, err := marshalJSON(msg.Mentions)
	if err != nil {
		return err
	}
	attachments, err := marshalJSON(msg.Attachments)
	if err != nil {
		return err
	}
	reactions, err := marshalJSON(msg.Reactions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (
			id, room_id, sender_id, sender_name, content, type,
			created_at, edited, deleted, reply_to, mentions, attachments, reactions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content,
		string(msg.Type), msg.CreatedAt, msg.Edited, msg.Deleted, msg.ReplyTo,
		string(mentions), string(attachments), string(reactions))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	msgs, err := s.queryMessages(ctx, "WHERE id = ?", 1, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, store.ErrNotFound
	}
	return msgs[0], nil
}

// ListRecentMessages returns the newest non-deleted messages for a room in
// chronological order. Timestamp ties order by insertion sequence, which keeps
// a given snapshot stable.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, roomID string, limit int, before *time.Time) ([]*store.Message, error) {
	where := "WHERE room_id = ? AND deleted = 0"
	args := []any{roomID}

	if before != nil {
		where += " AND created_at < ?"
		args = append(args, before.UTC())
	}

	messages, err := s.queryMessages(ctx, where+" ORDER BY created_at DESC, seq DESC", limit, args...)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order.
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// MarkMessageDeleted soft-deletes a message.
func (s *SQLiteStore) MarkMessageDeleted(ctx context.Context, id string) error {
	return s.setMessageFlag(ctx, "deleted", id)
}

// MarkMessageEdited flags a message as edited.
func (s *SQLiteStore) MarkMessageEdited(ctx context.Context, id string) error {
	return s.setMessageFlag(ctx, "edited", id)
}

func (s *SQLiteStore) setMessageFlag(ctx context.Context, column, id string) error {
	query := "UPDATE messages SET " + column + " = 1 WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update message %s: %w", column, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, whereOrder string, limit int, args ...any) ([]*store.Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, content, type,
		       created_at, edited, deleted, reply_to, mentions, attachments, reactions
		FROM messages ` + whereOrder + " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			m                                store.Message
			msgType                          string
			mentions, attachments, reactions string
		)
		if err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &msgType,
			&m.CreatedAt, &m.Edited, &m.Deleted, &m.ReplyTo,
			&mentions, &attachments, &reactions,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = store.MessageType(msgType)
		if err := unmarshalJSON(mentions, &m.Mentions); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(attachments, &m.Attachments); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(reactions, &m.Reactions); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return data, nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
