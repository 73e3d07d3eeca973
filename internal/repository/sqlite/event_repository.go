package sqlite

import (
	"context"
	"fmt"

	"github.com/Bwilkie91/camera/internal/models"
)

// EventRepository stores accepted event notifications.
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// InsertEvent appends a notification and returns its id.
func (r *EventRepository) InsertEvent(ctx context.Context, n *models.EventNotification) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO events (event_kind, camera_id, site_id, timestamp_utc, metadata_json, severity, integrity_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(n.Kind), n.CameraID, n.SiteID, n.Timestamp.UTC(), n.Metadata, string(n.Severity), n.IntegrityHash)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	return result.LastInsertId()
}

// GetRecent returns up to limit notifications, newest first.
func (r *EventRepository) GetRecent(ctx context.Context, limit int) ([]models.EventNotification, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, event_kind, camera_id, site_id, timestamp_utc, metadata_json, severity, integrity_hash
		FROM events ORDER BY timestamp_utc DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.EventNotification
	for rows.Next() {
		var n models.EventNotification
		var kind, severity string
		if err := rows.Scan(&n.ID, &kind, &n.CameraID, &n.SiteID, &n.Timestamp, &n.Metadata, &severity, &n.IntegrityHash); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		n.Kind = models.EventKind(kind)
		n.Severity = models.Severity(severity)
		events = append(events, n)
	}

	return events, rows.Err()
}
