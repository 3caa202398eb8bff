package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/mcoot/scanogram/internal/api/handler"
	"github.com/mcoot/scanogram/internal/api/middleware"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger    *slog.Logger
	Snapshots handler.Snapshots
	Sessions  handler.SessionCounter
	Rooms     handler.RoomCounter
	// Realtime serves the WebSocket upgrade at /ws
	Realtime http.Handler
	// Origins are the allowed CORS origins. "*" allows any.
	Origins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	statusHandler := handler.NewStatusHandler(cfg.Snapshots, cfg.Sessions, cfg.Rooms)
	roomHandler := handler.NewRoomHandler(cfg.Snapshots)
	playerHandler := handler.NewPlayerHandler(cfg.Snapshots)

	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	api.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/stats", statusHandler.Stats).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{code}", roomHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", playerHandler.Get).Methods(http.MethodGet)
	api.NotFoundHandler = http.HandlerFunc(handler.NotFound)

	if cfg.Realtime != nil {
		realtime := r.Path("/ws").Subrouter()
		realtime.Use(loggingMiddleware)
		realtime.Methods(http.MethodGet).Handler(cfg.Realtime)
	}

	origins := cfg.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)
}
