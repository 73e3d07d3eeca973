package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
	"github.com/Bwilkie91/camera/internal/services"
)

const maxConfigBytes = 1 << 20

// GetConfigHandler returns the active analytics configuration as YAML.
func GetConfigHandler(store *config.AnalyticsStore, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := store.Current().YAML()
		if err != nil {
			logger.Error("Error encoding analytics config: %v", err)
			http.Error(w, "Unable to encode config", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
	}
}

// PutConfigHandler applies a YAML analytics configuration. An invalid one is
// rejected and the active configuration is kept.
func PutConfigHandler(store *config.AnalyticsStore, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBytes))
		if err != nil {
			http.Error(w, "Error reading body", http.StatusBadRequest)
			return
		}

		next, err := config.ParseAnalytics(body)
		if err == nil {
			err = store.Apply(next)
		}
		if errors.Is(err, models.ErrConfigurationInvalid) {
			logger.Warning("⚠️ Rejected analytics config: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.Error("Error applying analytics config: %v", err)
			http.Error(w, "Unable to apply config", http.StatusInternalServerError)
			return
		}

		logger.Info("⚙️ Analytics config applied, version %d", store.Current().Version)
		w.WriteHeader(http.StatusNoContent)
	}
}

// CameraLister reports camera workers.
type CameraLister interface {
	Cameras() []services.CameraStats
}

// ViewerStats reports viewer fan-out.
type ViewerStats interface {
	GetClientCount() int
	Dropped() uint64
}

type healthResponse struct {
	Status         string                 `json:"status"`
	ConfigVersion  uint64                 `json:"config_version"`
	Cameras        []services.CameraStats `json:"cameras"`
	FramesDropped  uint64                 `json:"frames_dropped"`
	Viewers        int                    `json:"viewers"`
	ViewerDropped  uint64                 `json:"viewer_messages_dropped"`
	CanonicalQueue int                    `json:"canonical_pending"`
}

// Pending reports buffered canonical events.
type Pending interface {
	Pending() int
}

// HealthHandler reports camera workers, viewers and dropped frames.
func HealthHandler(store *config.AnalyticsStore, cameras CameraLister, viewers ViewerStats, buffer Pending, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:         "ok",
			ConfigVersion:  store.Current().Version,
			Cameras:        cameras.Cameras(),
			Viewers:        viewers.GetClientCount(),
			ViewerDropped:  viewers.Dropped(),
			CanonicalQueue: buffer.Pending(),
		}
		for _, c := range resp.Cameras {
			resp.FramesDropped += c.Drops
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}
