package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Bwilkie91/camera/internal/models"
)

// TrackRepository stores finalized tracks.
type TrackRepository struct {
	db *DB
}

func NewTrackRepository(db *DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// InsertTrack stores a finalized track. Finalized tracks are immutable, so
// a repeated id is rejected.
func (r *TrackRepository) InsertTrack(ctx context.Context, t *models.Track) error {
	flags, err := json.Marshal(orEmpty(t.Flags))
	if err != nil {
		return fmt.Errorf("failed to encode track flags: %w", err)
	}

	r.db.Lock()
	defer r.db.Unlock()

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO tracks (id, camera_id, person_id, start_utc, end_utc, detection_count, dwell_seconds,
			threat_score_max, anomaly_score_max, scene, loitered, predicted_intent, intent_flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.CameraID, nullString(t.PersonID), t.Start.UTC(), t.End.UTC(), t.DetectionCount, t.DwellSeconds,
		t.ThreatMax, t.AnomalyMax, t.Scene, t.Loitered, string(t.Intent), string(flags))
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// GetFinalized returns up to limit tracks, most recently ended first.
func (r *TrackRepository) GetFinalized(ctx context.Context, limit int) ([]models.Track, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, camera_id, person_id, start_utc, end_utc, detection_count, dwell_seconds,
			threat_score_max, anomaly_score_max, scene, loitered, predicted_intent, intent_flags
		FROM tracks ORDER BY end_utc DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var out []models.Track
	for rows.Next() {
		var t models.Track
		var personID sql.NullString
		var intent, flags string
		if err := rows.Scan(&t.ID, &t.CameraID, &personID, &t.Start, &t.End, &t.DetectionCount, &t.DwellSeconds,
			&t.ThreatMax, &t.AnomalyMax, &t.Scene, &t.Loitered, &intent, &flags); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		t.PersonID = personID.String
		t.Intent = models.Intent(intent)
		t.Finalized = true
		if err := json.Unmarshal([]byte(flags), &t.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode track %s flags: %w", t.ID, err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}
