package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/scanogram/internal/api/apierr"
	"github.com/mcoot/scanogram/internal/api/response"
	"github.com/mcoot/scanogram/internal/services/directory"
)

// RoomHandler serves room snapshots
type RoomHandler struct {
	snapshots Snapshots
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(snapshots Snapshots) *RoomHandler {
	return &RoomHandler{snapshots: snapshots}
}

// Get handles GET /api/v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := directory.NormalizeCode(mux.Vars(r)["code"])
	if code == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("room code is required"))
		return
	}

	room, err := h.snapshots.Room(r.Context(), code)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, room)
}
