package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Bwilkie91/camera/internal/models"
)

// CanonicalRepository appends canonical events.
type CanonicalRepository struct {
	db *DB
}

func NewCanonicalRepository(db *DB) *CanonicalRepository {
	return &CanonicalRepository{db: db}
}

const insertCanonical = `
	INSERT INTO canonical_events (
		timestamp_utc, camera_id, site_id, event_kind, event, object_summary,
		crowd_count, motion_detected, zones_json, person_id, audio_json, video_json,
		pose_json, thermal_presence, wifi_devices, threat_score, anomaly_score,
		predicted_intent, flags_json
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertBatch appends events in a single transaction, in slice order.
func (r *CanonicalRepository) InsertBatch(ctx context.Context, events []models.CanonicalEvent) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertCanonical)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		args, err := canonicalArgs(&events[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert canonical event: %w", err)
		}
	}

	return tx.Commit()
}

func canonicalArgs(ev *models.CanonicalEvent) ([]any, error) {
	zones, err := json.Marshal(orEmpty(ev.ZonesWithPerson))
	if err != nil {
		return nil, fmt.Errorf("failed to encode zones: %w", err)
	}
	audio, err := json.Marshal(ev.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio attributes: %w", err)
	}
	video, err := json.Marshal(ev.Video)
	if err != nil {
		return nil, fmt.Errorf("failed to encode video attributes: %w", err)
	}
	pose, err := json.Marshal(ev.Pose)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pose attributes: %w", err)
	}
	flags, err := json.Marshal(orEmpty(ev.Flags))
	if err != nil {
		return nil, fmt.Errorf("failed to encode flags: %w", err)
	}

	var thermal, wifi sql.NullInt64
	if ev.ThermalPresence != nil {
		thermal = sql.NullInt64{Int64: boolInt(*ev.ThermalPresence), Valid: true}
	}
	if ev.WiFiDevices != nil {
		wifi = sql.NullInt64{Int64: int64(*ev.WiFiDevices), Valid: true}
	}

	return []any{
		ev.Timestamp.UTC(), ev.CameraID, ev.SiteID, string(ev.Kind), ev.Event, ev.ObjectSummary,
		ev.CrowdCount, ev.MotionDetected, string(zones), nullString(ev.PersonID), string(audio), string(video),
		string(pose), thermal, wifi, ev.ThreatScore, ev.AnomalyScore,
		string(ev.Intent), string(flags),
	}, nil
}

// GetRecent returns up to limit events for a camera, newest first. An
// empty camera id matches every camera.
func (r *CanonicalRepository) GetRecent(ctx context.Context, cameraID string, limit int) ([]models.CanonicalEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, timestamp_utc, camera_id, site_id, event_kind, event, object_summary,
			crowd_count, motion_detected, zones_json, person_id, audio_json, video_json,
			pose_json, thermal_presence, wifi_devices, threat_score, anomaly_score,
			predicted_intent, flags_json
		FROM canonical_events
		WHERE (? = '' OR camera_id = ?)
		ORDER BY timestamp_utc DESC, id DESC
		LIMIT ?
	`, cameraID, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query canonical events: %w", err)
	}
	defer rows.Close()

	var events []models.CanonicalEvent
	for rows.Next() {
		var (
			ev                             models.CanonicalEvent
			kind, intent                   string
			zones, audio, video, pose, fls string
			personID                       sql.NullString
			thermal, wifi                  sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.CameraID, &ev.SiteID, &kind, &ev.Event, &ev.ObjectSummary,
			&ev.CrowdCount, &ev.MotionDetected, &zones, &personID, &audio, &video,
			&pose, &thermal, &wifi, &ev.ThreatScore, &ev.AnomalyScore,
			&intent, &fls); err != nil {
			return nil, fmt.Errorf("failed to scan canonical event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		ev.Intent = models.Intent(intent)
		ev.PersonID = personID.String
		if thermal.Valid {
			v := thermal.Int64 != 0
			ev.ThermalPresence = &v
		}
		if wifi.Valid {
			v := int(wifi.Int64)
			ev.WiFiDevices = &v
		}
		for _, col := range []struct {
			raw string
			dst any
		}{{zones, &ev.ZonesWithPerson}, {audio, &ev.Audio}, {video, &ev.Video}, {pose, &ev.Pose}, {fls, &ev.Flags}} {
			if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
				return nil, fmt.Errorf("failed to decode canonical event %d: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
