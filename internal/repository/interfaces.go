package repository

import (
	"context"
	"time"

	"github.com/Bwilkie91/camera/internal/models"
)

// CanonicalRepository defines the interface for canonical event storage.
type CanonicalRepository interface {
	// Create operations
	InsertBatch(ctx context.Context, events []models.CanonicalEvent) error

	// Read operations
	GetRecent(ctx context.Context, cameraID string, limit int) ([]models.CanonicalEvent, error)
}

// EventRepository defines the interface for accepted event notifications.
type EventRepository interface {
	InsertEvent(ctx context.Context, n *models.EventNotification) (int64, error)
	GetRecent(ctx context.Context, limit int) ([]models.EventNotification, error)
}

// PersonRepository defines the interface for person identities.
type PersonRepository interface {
	// Create operations
	CreatePerson(ctx context.Context, p *models.Person) error

	// Update operations
	TouchPerson(ctx context.Context, id string, seen time.Time, a models.Appearance) error
	RecordVisit(ctx context.Context, id string, dwellSeconds float64) error

	// Read operations
	Get(ctx context.Context, id string) (*models.Person, error)
}

// EmbeddingRepository defines the interface for Re-ID embeddings.
type EmbeddingRepository interface {
	InsertEmbedding(ctx context.Context, e *models.Embedding) (int64, error)
	LoadEmbeddings(ctx context.Context) ([]models.Embedding, error)
}

// TrackRepository defines the interface for finalized tracks.
type TrackRepository interface {
	InsertTrack(ctx context.Context, t *models.Track) error
	GetFinalized(ctx context.Context, limit int) ([]models.Track, error)
}
