package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// EventKind is the kind of event a cycle produced.
type EventKind string

const (
	KindNone      EventKind = "none"
	KindMotion    EventKind = "motion"
	KindLoitering EventKind = "loitering"
	KindLineCross EventKind = "line_cross"
	KindFall      EventKind = "fall"
	KindCrowding  EventKind = "crowding"
)

// Label returns the human readable event label stored with canonical rows.
func (k EventKind) Label() string {
	switch k {
	case KindMotion:
		return "Motion Detected"
	case KindLoitering:
		return "Loitering Detected"
	case KindLineCross:
		return "Line Crossing Detected"
	case KindFall:
		return "Fall Detected"
	case KindCrowding:
		return "Crowding Detected"
	default:
		return "None"
	}
}

// Intent is the predicted intent of a subject.
type Intent string

const (
	IntentPassing    Intent = "passing"
	IntentScouting   Intent = "scouting"
	IntentAggressive Intent = "aggressive"
	IntentNormal     Intent = "normal"
	IntentUnknown    Intent = "unknown"
)

// Severity grades notifications and alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// None is the sentinel for attributes whose source is absent or disabled.
const None = "none"

// AudioAttributes are derived from the cycle's transcript.
type AudioAttributes struct {
	Transcription string   `json:"transcription"`
	Sentiment     string   `json:"sentiment"`
	Emotion       string   `json:"emotion"`
	Stress        string   `json:"stress"`
	ThreatScore   int      `json:"threat_score"`
	AnomalyScore  float64  `json:"anomaly_score"`
	Background    string   `json:"background"`
	LoudnessDB    *float64 `json:"loudness_db"`
	SpeechRate    *float64 `json:"speech_rate_wpm"`
	Keywords      []string `json:"keywords"`
}

// VideoAttributes are derived from the primary person box and the scene.
type VideoAttributes struct {
	Build       string   `json:"build"`
	HeightCM    *float64 `json:"height_cm"`
	Emotion     string   `json:"emotion"`
	Stress      string   `json:"stress"`
	Suspicious  string   `json:"suspicious"`
	Scene       string   `json:"scene"`
	PeriodOfDay string   `json:"period_of_day_utc"`
	Clothing    string   `json:"clothing"`
}

// PoseAttributes are derived from pose landmarks.
type PoseAttributes struct {
	Posture    string `json:"posture"`
	GaitNotes  string `json:"gait_notes"`
	PersonDown bool   `json:"person_down"`
	Reason     string `json:"reason"`
}

// CanonicalEvent is the fused per-cycle record. It is produced once per
// analysis cycle and never mutated afterwards.
type CanonicalEvent struct {
	ID              int64           `json:"id"`
	Timestamp       time.Time       `json:"timestamp_utc"`
	CameraID        string          `json:"camera_id"`
	SiteID          string          `json:"site_id"`
	Kind            EventKind       `json:"event_kind"`
	Event           string          `json:"event"`
	ObjectSummary   string          `json:"object_summary"`
	CrowdCount      int             `json:"crowd_count"`
	MotionDetected  bool            `json:"motion_detected"`
	ZonesWithPerson []int           `json:"zones_with_person"`
	PersonID        string          `json:"person_id"`
	Audio           AudioAttributes `json:"audio"`
	Video           VideoAttributes `json:"video"`
	Pose            PoseAttributes  `json:"pose"`
	ThermalPresence *bool           `json:"thermal_presence"`
	WiFiDevices     *int            `json:"wifi_devices"`
	ThreatScore     int             `json:"threat_score"`
	AnomalyScore    float64         `json:"anomaly_score"`
	Intent          Intent          `json:"predicted_intent"`
	Flags           []string        `json:"flags"`
}

// EventNotification is the discrete "new event" record emitted when the
// deduplicator accepts an event.
type EventNotification struct {
	ID            int64     `json:"id"`
	Kind          EventKind `json:"event_kind"`
	CameraID      string    `json:"camera_id"`
	SiteID        string    `json:"site_id"`
	Timestamp     time.Time `json:"timestamp_utc"`
	Metadata      string    `json:"metadata_json"`
	Severity      Severity  `json:"severity"`
	IntegrityHash string    `json:"integrity_hash"`
}

// Seal computes the integrity hash over the notification's content fields.
func (n *EventNotification) Seal() {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		n.Kind, n.CameraID, n.SiteID, n.Timestamp.UTC().Format(time.RFC3339Nano), n.Metadata, n.Severity)
	sum := sha256.Sum256([]byte(payload))
	n.IntegrityHash = hex.EncodeToString(sum[:])
}

// AlertPayload is handed to alert sinks once the dispatcher triggers.
type AlertPayload struct {
	EventType   EventKind      `json:"event_type"`
	Severity    Severity       `json:"severity"`
	CameraID    string         `json:"camera_id"`
	Timestamp   time.Time      `json:"timestamp_utc"`
	ThreatScore int            `json:"threat_score"`
	Metadata    map[string]any `json:"metadata"`
}
