package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/auth"
	"github.com/skillguru/chat-server/internal/bridge"
	"github.com/skillguru/chat-server/internal/config"
	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/store"
	"github.com/skillguru/chat-server/internal/store/sqlite"
	transporthttp "github.com/skillguru/chat-server/internal/transport/http"
)

// App wires together storage, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	if err := ensureDefaultRoom(st, logger); err != nil {
		_ = st.Close()
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	hub := core.NewHub(logger)
	br := bridge.New(st, cfg.StoreTimeout, logger)
	server := transporthttp.NewServer(hub, br, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// ensureDefaultRoom creates the general room on first start.
func ensureDefaultRoom(st store.Store, logger *zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := st.GetRoomByName(ctx, "general")
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up default room: %w", err)
	}

	room := &store.Room{
		Name:        "general",
		Description: "General discussion",
		Type:        store.RoomTypeGeneral,
		Public:      true,
		Settings:    store.DefaultRoomSettings(),
		Active:      true,
	}
	if err := st.CreateRoom(ctx, room); err != nil {
		if errors.Is(err, store.ErrNameConflict) {
			return nil
		}
		return fmt.Errorf("create default room: %w", err)
	}

	logger.Info().Str("room_id", room.ID).Msg("default room created")
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
