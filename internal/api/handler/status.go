package handler

import (
	"context"
	"net/http"

	"github.com/mcoot/scanogram/internal/api/apierr"
	"github.com/mcoot/scanogram/internal/api/response"
	"github.com/mcoot/scanogram/internal/model"
)

// Snapshots renders the read models served by the API
type Snapshots interface {
	Room(ctx context.Context, code model.RoomCode) (*model.PopulatedRoom, error)
	Player(ctx context.Context, id model.PlayerID) (*model.PopulatedPlayer, error)
	Overview(ctx context.Context) (model.AppOverview, error)
}

// SessionCounter reports the number of live realtime sessions
type SessionCounter interface {
	Count() int
}

// RoomCounter reports the number of rooms with connected members
type RoomCounter interface {
	RoomCount() int
}

// StatusHandler handles health and stats endpoints
type StatusHandler struct {
	snapshots Snapshots
	sessions  SessionCounter
	rooms     RoomCounter
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(snapshots Snapshots, sessions SessionCounter, rooms RoomCounter) *StatusHandler {
	return &StatusHandler{
		snapshots: snapshots,
		sessions:  sessions,
		rooms:     rooms,
	}
}

// Health handles GET /api/v1/health
func (h *StatusHandler) Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.HealthResponse{
		Status:      "ok",
		Connections: h.sessions.Count(),
		ActiveRooms: h.rooms.RoomCount(),
	})
}

// Stats handles GET /api/v1/stats
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	overview, err := h.snapshots.Overview(r.Context())
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.StatsResponse{
		AppOverview: overview,
		Connections: h.sessions.Count(),
	})
}

// NotFound handles unknown API routes
func NotFound(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, apierr.NewNotFoundError())
}
