package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/auth"
	"github.com/skillguru/chat-server/internal/bridge"
	"github.com/skillguru/chat-server/internal/config"
	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/store"
)

// NewServer builds the HTTP server with all routes wired.
func NewServer(hub *core.Hub, br *bridge.Bridge, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	authHandlers := NewAuthHandlers(authService, logger)
	chatHandlers := NewChatHandlers(st, br, hub, logger)
	wsHandler := NewWSHandler(hub, br, authService, cfg.HistoryLimit, cfg.MaxMessageBytes, cfg.InboundRateLimit, logger)

	router.GET("/health", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			logger.Warn().Err(err).Msg("health check: store unreachable")
			c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/register", authHandlers.Register)
	router.POST("/api/login", authHandlers.Login)

	// The websocket handler does its own token check (query param or header).
	router.GET("/ws", gin.WrapH(wsHandler))

	api := router.Group("/api/chat")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/rooms", chatHandlers.ListRooms)
		api.POST("/rooms", chatHandlers.CreateRoom)
		api.DELETE("/rooms/:room_id", chatHandlers.DeactivateRoom)
		api.GET("/rooms/:room_id/messages", chatHandlers.RoomMessages)
		api.GET("/online-users", chatHandlers.OnlineUsers)
		api.GET("/stats", chatHandlers.Stats)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
