package routes

import (
	"net/http"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/handlers"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/repository"
	"github.com/Bwilkie91/camera/internal/services"
	"github.com/Bwilkie91/camera/internal/services/storage"
	"github.com/Bwilkie91/camera/internal/services/websocket"
)

// Deps are the services the HTTP surface reads from or feeds.
type Deps struct {
	Config    *config.Config
	Analytics *config.AnalyticsStore
	Manager   *services.Manager
	Hub       *websocket.HubService
	Buffer    *storage.BufferService
	Events    repository.EventRepository
	Canonical repository.CanonicalRepository
	Tracks    repository.TrackRepository
	Logger    *logger.Logger
}

// SetupRoutes registers the websocket endpoints, the config and health
// endpoints and the read-only event APIs.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// Websockets
	mux.HandleFunc("GET /api/frames", handlers.FrameWebsocketHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /api/view", handlers.ViewWebsocketHandler(d.Hub, d.Logger))

	// Configuration
	mux.HandleFunc("GET /api/config", handlers.GetConfigHandler(d.Analytics, d.Logger))
	mux.HandleFunc("PUT /api/config", handlers.PutConfigHandler(d.Analytics, d.Logger))

	// Read APIs
	mux.HandleFunc("GET /api/events", handlers.RecentEventsHandler(d.Events, d.Logger))
	mux.HandleFunc("GET /api/canonical", handlers.CanonicalEventsHandler(d.Canonical, d.Logger))
	mux.HandleFunc("GET /api/tracks", handlers.TracksHandler(d.Tracks, d.Logger))

	// Log endpoints
	mux.HandleFunc("GET /api/logs/{level}", handlers.ShowLogsHandler(d.Config.LogDirectory))
	mux.HandleFunc("DELETE /api/logs/{level}", handlers.ClearLogsHandler(d.Logger))

	mux.HandleFunc("GET /health", handlers.HealthHandler(d.Analytics, d.Manager, d.Hub, d.Buffer, d.Logger))

	return mux
}
