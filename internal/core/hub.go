package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub owns the connection registry, the session-scoped room membership index,
// the typing tracker and the broadcaster. It is constructed once at process
// start and shared by reference; all mutating operations are serialized by a
// single lock so the bidirectional membership invariant (user's joined-room
// set vs room's member set) cannot observe lost updates.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client    // user id -> live connection
	rooms   map[string]*roomState // room id -> session state
	log     *zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]*roomState),
		log:     logger,
	}
}

// Connect registers a live connection. A prior connection for the same user
// is superseded: it is torn down and the new connection inherits its room
// memberships. Typing flags do not carry over; a final stopped-typing
// notification is sent for each room where the old connection was typing.
// Returns whether an old connection was replaced.
func (h *Hub) Connect(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, replaced := h.clients[c.ID]
	if replaced {
		for roomID := range old.Rooms {
			room := h.rooms[roomID]
			if room == nil {
				continue
			}
			c.Rooms[roomID] = struct{}{}
			h.clearTypingLocked(room, roomID, old)
		}
		old.Close()
		h.log.Info().Str("user_id", c.ID).Msg("connection superseded")
	}

	h.clients[c.ID] = c
	return replaced
}

// Disconnect removes the connection from the registry, detaches the user from
// every joined room and clears its typing state. Each detachment produces the
// same user-left notification an explicit leave does. Calling Disconnect for
// an already superseded connection only tears that connection down.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer c.Close()

	if h.clients[c.ID] != c {
		// Superseded by a newer connection; its state now belongs to the
		// replacement.
		return
	}
	delete(h.clients, c.ID)

	for roomID := range c.Rooms {
		h.leaveLocked(c, roomID)
	}
}

// Join adds the client to a room and the room to the client's joined set.
// Idempotent: a second join of the same room is a no-op returning false.
// Other current members receive a user-joined notification.
func (h *Hub) Join(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[roomID]
	if room == nil {
		room = newRoomState()
		h.rooms[roomID] = room
	}
	if _, member := room.members[c.ID]; member {
		return false
	}

	room.members[c.ID] = struct{}{}
	c.Rooms[roomID] = struct{}{}

	h.broadcastLocked(room, &Event{
		Kind:     EventUserJoined,
		Room:     roomID,
		User:     c.ID,
		Username: c.Name,
	}, c.ID)
	return true
}

// Leave removes the room/user pairing. Returns false when the client was not
// a member, which is not an error. Remaining members receive a user-left
// notification.
func (h *Hub) Leave(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, joined := c.Rooms[roomID]; !joined {
		return false
	}
	h.leaveLocked(c, roomID)
	return true
}

// leaveLocked detaches the client from one room, clears its typing flag and
// notifies the remaining members. Caller holds the write lock.
func (h *Hub) leaveLocked(c *Client, roomID string) {
	delete(c.Rooms, roomID)
	room := h.rooms[roomID]
	if room == nil {
		return
	}

	h.clearTypingLocked(room, roomID, c)
	delete(room.members, c.ID)

	h.broadcastLocked(room, &Event{
		Kind:     EventUserLeft,
		Room:     roomID,
		User:     c.ID,
		Username: c.Name,
	}, c.ID)

	if room.empty() {
		delete(h.rooms, roomID)
	}
}

// clearTypingLocked drops the client's typing flag and, when one was active,
// sends the final stopped-typing notification so observers don't show a stuck
// indicator. Caller holds the write lock.
func (h *Hub) clearTypingLocked(room *roomState, roomID string, c *Client) {
	if !room.typing[c.ID] {
		return
	}
	delete(room.typing, c.ID)
	h.broadcastLocked(room, &Event{
		Kind:     EventTyping,
		Room:     roomID,
		User:     c.ID,
		Username: c.Name,
		Typing:   false,
	}, c.ID)
}

// SetTyping updates the client's ephemeral typing flag for a room and
// broadcasts the new state to the other members. Returns false when the
// client is not a member of the room.
func (h *Hub) SetTyping(c *Client, roomID string, isTyping bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[roomID]
	if room == nil {
		return false
	}
	if _, member := room.members[c.ID]; !member {
		return false
	}

	if isTyping {
		room.typing[c.ID] = true
	} else {
		delete(room.typing, c.ID)
	}

	h.broadcastLocked(room, &Event{
		Kind:     EventTyping,
		Room:     roomID,
		User:     c.ID,
		Username: c.Name,
		Typing:   isTyping,
	}, c.ID)
	return true
}

// Send queues an event for one user. A silent no-op when the user is not
// connected; undeliverable payloads are never queued or retried.
func (h *Hub) Send(userID string, ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.sendLocked(userID, ev)
}

// sendLocked resolves the user to its live connection and queues the event.
// Caller holds the lock.
func (h *Hub) sendLocked(userID string, ev *Event) {
	if c, ok := h.clients[userID]; ok {
		c.deliver(ev)
	}
}

// BroadcastToRoom queues an event for every connected member of the room.
func (h *Hub) BroadcastToRoom(roomID string, ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room := h.rooms[roomID]; room != nil {
		h.broadcastLocked(room, ev, "")
	}
}

// BroadcastExcluding is BroadcastToRoom skipping one member.
func (h *Hub) BroadcastExcluding(roomID string, ev *Event, excludedUserID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room := h.rooms[roomID]; room != nil {
		h.broadcastLocked(room, ev, excludedUserID)
	}
}

// broadcastLocked delivers the event to every room member through the
// connection registry, optionally skipping one user. A member without a live
// connection is skipped; one bad recipient does not affect the rest. Caller
// holds the lock.
func (h *Hub) broadcastLocked(room *roomState, ev *Event, excludedUserID string) {
	for id := range room.members {
		if id == excludedUserID {
			continue
		}
		h.sendLocked(id, ev)
	}
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the ids of all currently connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	return users
}

// IsMember reports whether the user is currently joined to the room.
func (h *Hub) IsMember(userID, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[roomID]
	if room == nil {
		return false
	}
	_, ok := room.members[userID]
	return ok
}

// MembersOf returns the user ids currently joined to the room.
func (h *Hub) MembersOf(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[roomID]
	if room == nil {
		return nil
	}
	members := make([]string, 0, len(room.members))
	for id := range room.members {
		members = append(members, id)
	}
	return members
}

// RoomsOf returns the room ids the user is currently joined to.
func (h *Hub) RoomsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c := h.clients[userID]
	if c == nil {
		return nil
	}
	rooms := make([]string, 0, len(c.Rooms))
	for id := range c.Rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// TypingUsers returns the user ids with an active typing flag in the room.
func (h *Hub) TypingUsers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[roomID]
	if room == nil {
		return nil
	}
	users := make([]string, 0, len(room.typing))
	for id := range room.typing {
		users = append(users, id)
	}
	return users
}

// RoomStats describes one room's session state.
type RoomStats struct {
	Members int `json:"members"`
	Typing  int `json:"typing"`
}

// Stats is a point-in-time snapshot of the hub for observability.
type Stats struct {
	Connections int                  `json:"total_connections"`
	ActiveRooms int                  `json:"active_rooms"`
	Rooms       map[string]RoomStats `json:"rooms"`
}

// Stats returns aggregate connection and room counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Connections: len(h.clients),
		ActiveRooms: len(h.rooms),
		Rooms:       make(map[string]RoomStats, len(h.rooms)),
	}
	for id, room := range h.rooms {
		stats.Rooms[id] = RoomStats{
			Members: len(room.members),
			Typing:  len(room.typing),
		}
	}
	return stats
}
