package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

const maxPageSize = 500

// EventReader lists recent event notifications.
type EventReader interface {
	GetRecent(ctx context.Context, limit int) ([]models.EventNotification, error)
}

// CanonicalReader lists recent canonical records.
type CanonicalReader interface {
	GetRecent(ctx context.Context, cameraID string, limit int) ([]models.CanonicalEvent, error)
}

// TrackReader lists finalized tracks.
type TrackReader interface {
	GetFinalized(ctx context.Context, limit int) ([]models.Track, error)
}

// RecentEventsHandler returns the newest accepted events.
func RecentEventsHandler(repo EventReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := repo.GetRecent(r.Context(), pageSize(r, 50))
		if err != nil {
			logger.Error("Error loading events: %v", err)
			http.Error(w, "Unable to load events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, orEmpty(events), logger)
	}
}

// CanonicalEventsHandler returns the newest canonical records, optionally
// for one camera.
func CanonicalEventsHandler(repo CanonicalReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := repo.GetRecent(r.Context(), r.URL.Query().Get("camera"), pageSize(r, 50))
		if err != nil {
			logger.Error("Error loading canonical events: %v", err)
			http.Error(w, "Unable to load canonical events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, orEmpty(events), logger)
	}
}

// TracksHandler returns the most recently finalized tracks.
func TracksHandler(repo TrackReader, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracks, err := repo.GetFinalized(r.Context(), pageSize(r, 50))
		if err != nil {
			logger.Error("Error loading tracks: %v", err)
			http.Error(w, "Unable to load tracks", http.StatusInternalServerError)
			return
		}
		writeJSON(w, orEmpty(tracks), logger)
	}
}

func pageSize(r *http.Request, def int) int {
	return min(atoiDefault(r.URL.Query().Get("limit"), def), maxPageSize)
}

// atoiDefault parses a positive integer, falling back to def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
