package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/scanogram/internal/api/apierr"
	"github.com/mcoot/scanogram/internal/api/response"
	"github.com/mcoot/scanogram/internal/model"
)

// PlayerHandler serves player records
type PlayerHandler struct {
	snapshots Snapshots
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(snapshots Snapshots) *PlayerHandler {
	return &PlayerHandler{snapshots: snapshots}
}

// Get handles GET /api/v1/players/{id}
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := model.PlayerID(mux.Vars(r)["id"])
	if id == "" {
		apierr.WriteError(w, apierr.NewInvalidRequestError("player id is required"))
		return
	}

	player, err := h.snapshots.Player(r.Context(), id)
	if err != nil {
		apierr.WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, player)
}
