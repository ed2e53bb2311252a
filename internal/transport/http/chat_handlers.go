package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/bridge"
	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/proto"
	"github.com/skillguru/chat-server/internal/store"
)

// ChatHandlers provides the REST read side of the chat core: room listing and
// management, message pages, presence and observability.
type ChatHandlers struct {
	store  store.Store
	bridge *bridge.Bridge
	hub    *core.Hub
	log    *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, br *bridge.Bridge, hub *core.Hub, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store:  st,
		bridge: br,
		hub:    hub,
		log:    logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name        string              `json:"name" binding:"required,min=1,max=64"`
	Description string              `json:"description" binding:"max=256"`
	RoomType    string              `json:"room_type"`
	IsPublic    *bool               `json:"is_public"`
	MaxMembers  int                 `json:"max_members"`
	Settings    *store.RoomSettings `json:"settings"`
	Tags        []string            `json:"tags"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID            string             `json:"room_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Type          string             `json:"room_type"`
	IsPublic      bool               `json:"is_public"`
	MemberCount   int                `json:"member_count"`
	OnlineMembers int                `json:"online_members"`
	MaxMembers    int                `json:"max_members,omitempty"`
	Settings      store.RoomSettings `json:"settings"`
	Tags          []string           `json:"tags,omitempty"`
	CreatedBy     string             `json:"created_by,omitempty"`
	CreatedAt     string             `json:"created_at"`
	LastActivity  string             `json:"last_activity"`
}

// CreateRoom handles room creation.
// POST /api/chat/rooms
func (h *ChatHandlers) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	settings := store.DefaultRoomSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	roomType := store.RoomTypeGeneral
	if req.RoomType != "" {
		roomType = store.RoomType(req.RoomType)
	}

	room := &store.Room{
		Name:        req.Name,
		Description: req.Description,
		Type:        roomType,
		Public:      public,
		Members:     []string{},
		Moderators:  []string{userID},
		MaxMembers:  req.MaxMembers,
		Settings:    settings,
		Tags:        req.Tags,
		CreatedBy:   userID,
		Active:      true,
	}

	if err := h.store.CreateRoom(c.Request.Context(), room); err != nil {
		if errors.Is(err, store.ErrNameConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "a room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Str("room_id", room.ID).Str("created_by", userID).Msg("room created")
	c.JSON(http.StatusCreated, h.roomResponse(room))
}

// ListRooms handles listing active rooms.
// GET /api/chat/rooms?type=&search=&limit=
func (h *ChatHandlers) ListRooms(c *gin.Context) {
	filter := store.RoomFilter{
		Type:   store.RoomType(c.Query("type")),
		Search: c.Query("search"),
		Limit:  parseLimit(c.Query("limit")),
	}

	rooms, err := h.store.ListRooms(c.Request.Context(), filter)
	if err != nil {
		// Degrade to an empty listing instead of failing the caller.
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusOK, []RoomResponse{})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, h.roomResponse(room))
	}
	c.JSON(http.StatusOK, response)
}

// DeactivateRoom soft-deletes a room by flipping its active flag.
// DELETE /api/chat/rooms/:room_id
func (h *ChatHandlers) DeactivateRoom(c *gin.Context) {
	roomID := c.Param("room_id")

	if err := h.store.DeactivateRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to deactivate room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Msg("room deactivated")
	c.Status(http.StatusNoContent)
}

// RoomMessages returns a page of a room's messages, oldest first.
// GET /api/chat/rooms/:room_id/messages?limit=&before=
func (h *ChatHandlers) RoomMessages(c *gin.Context) {
	roomID := c.Param("room_id")

	if _, err := h.store.GetRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to look up room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	limit := parseLimit(c.Query("limit"))
	before := c.Query("before")

	messages, err := h.bridge.RecentMessages(c.Request.Context(), roomID, limit, before)
	if err != nil {
		// Degraded read: an unreachable store yields an empty page.
		h.log.Warn().Err(err).Str("room_id", roomID).Msg("message page degraded to empty")
		messages = nil
	}

	response := make([]proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messagePayload(msg))
	}
	c.JSON(http.StatusOK, response)
}

// OnlineUsers returns the ids of currently connected users.
// GET /api/chat/online-users
func (h *ChatHandlers) OnlineUsers(c *gin.Context) {
	users := h.hub.OnlineUsers()
	c.JSON(http.StatusOK, gin.H{
		"online_users": users,
		"total_count":  len(users),
	})
}

// Stats returns aggregate connection and room counters.
// GET /api/chat/stats
func (h *ChatHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

func (h *ChatHandlers) roomResponse(room *store.Room) RoomResponse {
	online := 0
	for _, member := range room.Members {
		if h.hub.IsOnline(member) {
			online++
		}
	}
	return RoomResponse{
		ID:            room.ID,
		Name:          room.Name,
		Description:   room.Description,
		Type:          string(room.Type),
		IsPublic:      room.Public,
		MemberCount:   len(room.Members),
		OnlineMembers: online,
		MaxMembers:    room.MaxMembers,
		Settings:      room.Settings,
		Tags:          room.Tags,
		CreatedBy:     room.CreatedBy,
		CreatedAt:     room.CreatedAt.UTC().Format(time.RFC3339Nano),
		LastActivity:  room.LastActivity.UTC().Format(time.RFC3339Nano),
	}
}

// parseLimit clamps the limit query parameter to [1, 100], defaulting to 50.
func parseLimit(raw string) int {
	if raw == "" {
		return 50
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 50
	}
	if limit > 100 {
		return 100
	}
	return limit
}
