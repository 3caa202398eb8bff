package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/model"
)

// Handler upgrades HTTP requests to websocket sessions and pumps frames
// between the socket and a SessionHandler.
type Handler struct {
	upgrader websocket.Upgrader
	sessions SessionHandler
	random   random.Random
	logger   *slog.Logger
}

// NewHandler creates a new Handler. An origins list containing "*" accepts
// any origin; requests without an Origin header are always accepted.
func NewHandler(sessions SessionHandler, origins []string, random random.Random, logger *slog.Logger) *Handler {
	allowAll := slices.Contains(origins, "*")
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || slices.Contains(origins, origin)
			},
		},
		sessions: sessions,
		random:   random,
		logger:   logger.With(slog.String("component", "ws")),
	}
}

// ParseHandshake reads the player id and device descriptor from the query
// string. A malformed device descriptor is treated as absent.
func ParseHandshake(q url.Values) Handshake {
	hs := Handshake{PlayerID: model.PlayerID(q.Get("playerId"))}
	if raw := q.Get("device"); raw != "" {
		var device model.DeviceDescriptor
		if err := json.Unmarshal([]byte(raw), &device); err == nil {
			hs.Device = device
		}
	}
	return hs
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hs := ParseHandshake(r.URL.Query())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := NewClient(model.SessionID(h.random.UUID()), conn, h.logger)
	go client.writePump()

	// The session outlives the request context once the connection is hijacked
	ctx := context.WithoutCancel(r.Context())

	session, err := h.sessions.Connect(ctx, client, hs)
	if err != nil {
		h.logger.Warn("ws connect rejected",
			slog.String("session_id", string(client.SessionID())),
			slog.String("error", err.Error()))
		EmitError(client, err)
		client.Close()
		return
	}
	defer h.sessions.Disconnect(ctx, session)
	defer client.Close()

	err = client.readPump(func(data []byte) {
		frame, err := Decode(data)
		if err != nil {
			EmitError(client, err)
			return
		}
		if !h.dispatch(ctx, session, frame) {
			client.Close()
		}
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.logger.Info("ws connection lost",
			slog.String("session_id", string(session.ID)),
			slog.String("player_id", string(session.PlayerID)),
			slog.String("error", err.Error()))
	}
}

// dispatch hands one frame to the session handler. A panic is logged and
// reported as false so the caller can drop the connection.
func (h *Handler) dispatch(ctx context.Context, session model.Session, frame Frame) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic handling ws event",
				slog.Any("error", rec),
				slog.String("stack", string(debug.Stack())),
				slog.String("event", string(frame.Event)),
				slog.String("session_id", string(session.ID)))
			ok = false
		}
	}()
	h.sessions.Handle(ctx, session, frame)
	return true
}
