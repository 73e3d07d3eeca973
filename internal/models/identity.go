package models

import "time"

// HistoryLimit caps the rolling appearance history kept per person.
const HistoryLimit = 10

// Person is a persistent identity built from matched embeddings.
type Person struct {
	ID                string    `json:"id"`
	FirstSeen         time.Time `json:"first_seen_utc"`
	LastSeen          time.Time `json:"last_seen_utc"`
	VisitCount        int       `json:"visit_count"`
	TotalDwellSeconds float64   `json:"total_dwell_seconds"`
	ClothingHistory   []string  `json:"clothing_history"`
	HeightHistory     []float64 `json:"height_history"`
}

// Appearance is what a sighting contributes to a person's rolling history.
type Appearance struct {
	Clothing string
	HeightCM *float64
}

// Remember appends the appearance to the rolling histories.
func (p *Person) Remember(a Appearance) {
	if a.Clothing != "" && a.Clothing != None {
		p.ClothingHistory = appendRolling(p.ClothingHistory, a.Clothing)
	}
	if a.HeightCM != nil {
		p.HeightHistory = appendRolling(p.HeightHistory, *a.HeightCM)
	}
}

func appendRolling[T any](history []T, v T) []T {
	history = append(history, v)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	return history
}

// Embedding is an L2-normalized appearance vector. PersonID is empty while
// the embedding is unassigned.
type Embedding struct {
	ID        int64     `json:"id"`
	PersonID  string    `json:"person_id"`
	CameraID  string    `json:"camera_id"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// Track is a contiguous run of one subject's detections on a camera.
// PersonID is empty for an unidentified subject.
type Track struct {
	ID             string    `json:"track_id"`
	CameraID       string    `json:"camera_id"`
	PersonID       string    `json:"person_id"`
	Start          time.Time `json:"start_utc"`
	End            time.Time `json:"end_utc"`
	DetectionCount int       `json:"detection_count"`
	DwellSeconds   float64   `json:"dwell_seconds"`
	ThreatMax      int       `json:"threat_score_max"`
	AnomalyMax     float64   `json:"anomaly_score_max"`
	Scene          string    `json:"scene"`
	Loitered       bool      `json:"loitered"`
	Intent         Intent    `json:"intent"`
	Flags          []string  `json:"intent_flags"`
	Finalized      bool      `json:"finalized"`
}

// Known reports whether the track is attributed to a person.
func (t Track) Known() bool { return t.PersonID != "" }
