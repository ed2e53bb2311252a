package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/skillguru/chat-server/internal/auth"
	"github.com/skillguru/chat-server/internal/core"
	"github.com/skillguru/chat-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to a core session.
type WSHandler struct {
	hub             *core.Hub
	bridge          core.PersistenceBridge
	authService     *auth.Service
	historyLimit    int
	maxMessageBytes int64
	rateLimit       int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, bridge core.PersistenceBridge, authService *auth.Service, historyLimit int, maxMessageBytes int64, rateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:             hub,
		bridge:          bridge,
		authService:     authService,
		historyLimit:    historyLimit,
		maxMessageBytes: maxMessageBytes,
		rateLimit:       rateLimit,
		log:             logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	// Browsers cannot set headers on WebSocket dials, so the token also
	// travels as a query parameter.
	user, err := h.authService.UserFromToken(ctx, wsToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(user.ID, user.DisplayName)
	h.hub.Connect(client)
	defer h.hub.Disconnect(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := core.NewSession(h.hub, h.bridge, client, h.historyLimit, h.log)
	go session.Run(ctx)

	h.log.Info().Str("user_id", user.ID).Msg("ws connected")

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	client.Close()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("user_id", user.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Info().Str("user_id", user.ID).Msg("ws disconnected")
	conn.Close(status, reason)
}

// readLoop reads frames and feeds decoded commands into the session.
// Malformed payloads get an error frame and the connection stays alive; only
// transport failures end the loop.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rateLimit)
	limiter.startReset(ctx.Done())

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type: proto.OutboundTypeError,
				Data: proto.ErrorPayload{Code: core.ErrCodeBadRequest, Message: "rate limit exceeded"},
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Warn().Err(err).Str("user_id", client.ID).Msg("malformed inbound frame")
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type: proto.OutboundTypeError,
				Data: proto.ErrorPayload{Code: core.ErrCodeMalformedInput, Message: "invalid message format"},
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("user_id", client.ID).Str("type", inbound.Type).Str("code", protoErr.Code).Msg("rejected inbound frame")
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type: proto.OutboundTypeError,
				Data: *protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("user_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func wsToken(r *stdhttp.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
