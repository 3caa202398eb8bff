package response

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/scanogram/internal/model"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	ActiveRooms int    `json:"activeRooms"`
}

// StatsResponse is the body of GET /stats
type StatsResponse struct {
	model.AppOverview
	Connections int `json:"connections"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
