package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bwilkie91/camera/internal/models"
)

const (
	minCycleInterval = 5 * time.Second
	maxCycleInterval = 60 * time.Second
	maxIdleSkip      = 5.0
)

// Modalities switches optional perception inputs on or off. Disabled inputs
// are reported with sentinel values.
type Modalities struct {
	Audio   bool `yaml:"audio" json:"audio"`
	Pose    bool `yaml:"pose" json:"pose"`
	Thermal bool `yaml:"thermal" json:"thermal"`
	WiFi    bool `yaml:"wifi" json:"wifi"`
}

// PredictorRules are the thresholds of the rule-based threat stage.
type PredictorRules struct {
	LoiterDurationSeconds float64 `yaml:"loiter_duration_seconds" json:"loiter_duration_seconds"`
	NightStartHour        int     `yaml:"night_start_hour" json:"night_start_hour"`
	NightEndHour          int     `yaml:"night_end_hour" json:"night_end_hour"`
	AnomalyHigh           float64 `yaml:"anomaly_high" json:"anomaly_high"`
	UseIsolationForest    bool    `yaml:"use_isolation_forest" json:"use_isolation_forest"`
	TrackGapSeconds       float64 `yaml:"track_gap_seconds" json:"track_gap_seconds"`
}

// ReID configures identity matching.
type ReID struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	// Dimension pins the embedding length. Zero accepts the first length seen.
	Dimension int `yaml:"dimension" json:"dimension"`
}

// AlertPolicy configures the alert dispatcher.
type AlertPolicy struct {
	MinThreat       int                `yaml:"min_threat" json:"min_threat"`
	CooldownSeconds float64            `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	Kinds           []models.EventKind `yaml:"kinds" json:"kinds"` // Empty means every non-none kind
	MediumLevel     int                `yaml:"medium_level" json:"medium_level"`
	HighLevel       int                `yaml:"high_level" json:"high_level"`
}

// Analytics is the hot-reloadable analysis configuration. A value held by
// AnalyticsStore is shared read-only across camera workers.
type Analytics struct {
	CycleIntervalSeconds float64        `yaml:"cycle_interval_seconds" json:"cycle_interval_seconds"`
	IdleSkipAfterSeconds float64        `yaml:"idle_skip_after_seconds" json:"idle_skip_after_seconds"`
	IdleSkipMultiplier   float64        `yaml:"idle_skip_multiplier" json:"idle_skip_multiplier"`
	LoiterSeconds        float64        `yaml:"loiter_seconds" json:"loiter_seconds"`
	Zones                []models.Zone  `yaml:"zones" json:"zones"`
	Lines                []models.Line  `yaml:"lines" json:"lines"`
	DedupCooldownSeconds float64        `yaml:"dedup_cooldown_seconds" json:"dedup_cooldown_seconds"`
	CrowdThreshold       int            `yaml:"crowd_threshold" json:"crowd_threshold"` // Zero disables crowding events
	PersonConfidence     float64        `yaml:"person_confidence" json:"person_confidence"`
	Modalities           Modalities     `yaml:"modalities" json:"modalities"`
	Predictor            PredictorRules `yaml:"predictor" json:"predictor"`
	ReID                 ReID           `yaml:"reid" json:"reid"`
	Alerts               AlertPolicy    `yaml:"alerts" json:"alerts"`

	// Version is assigned by AnalyticsStore on every successful apply.
	Version uint64 `yaml:"-" json:"version"`
}

// DefaultAnalytics returns the built-in analysis configuration.
func DefaultAnalytics() *Analytics {
	return &Analytics{
		CycleIntervalSeconds: 10,
		IdleSkipAfterSeconds: 120,
		IdleSkipMultiplier:   2,
		LoiterSeconds:        30,
		Zones: []models.Zone{
			{Name: "zone-0", Points: [][2]float64{{0.1, 0.1}, {0.5, 0.1}, {0.5, 0.5}, {0.1, 0.5}}},
		},
		Lines: []models.Line{
			{Name: "line-0", Points: [4]float64{0.5, 0, 0.5, 1}},
		},
		DedupCooldownSeconds: 5,
		CrowdThreshold:       5,
		PersonConfidence:     0.5,
		Modalities:           Modalities{Audio: true, Pose: true},
		Predictor: PredictorRules{
			LoiterDurationSeconds: 300,
			NightStartHour:        22,
			NightEndHour:          6,
			AnomalyHigh:           0.5,
			UseIsolationForest:    true,
			TrackGapSeconds:       300,
		},
		ReID: ReID{SimilarityThreshold: 0.85},
		Alerts: AlertPolicy{
			MinThreat:       20,
			CooldownSeconds: 60,
			MediumLevel:     40,
			HighLevel:       70,
		},
	}
}

// LoadAnalytics reads a YAML analysis configuration on top of the defaults.
// A missing file yields the defaults.
func LoadAnalytics(path string) (*Analytics, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultAnalytics(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analytics config: %w", err)
	}
	return ParseAnalytics(data)
}

// ParseAnalytics decodes YAML on top of the defaults and validates the result.
func ParseAnalytics(data []byte) (*Analytics, error) {
	a := DefaultAnalytics()
	if err := yaml.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfigurationInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate rejects configurations that cannot be applied.
func (a *Analytics) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", models.ErrConfigurationInvalid, fmt.Sprintf(format, args...))
	}

	if a.CycleIntervalSeconds <= 0 {
		return invalid("cycle_interval_seconds must be positive")
	}
	if a.IdleSkipAfterSeconds < 0 {
		return invalid("idle_skip_after_seconds must not be negative")
	}
	if a.IdleSkipMultiplier < 1 {
		return invalid("idle_skip_multiplier must be at least 1")
	}
	if a.LoiterSeconds < 0 || a.DedupCooldownSeconds < 0 || a.CrowdThreshold < 0 {
		return invalid("thresholds must not be negative")
	}
	if a.PersonConfidence < 0 || a.PersonConfidence > 1 {
		return invalid("person_confidence must be within [0,1]")
	}

	for i, z := range a.Zones {
		if len(z.Points) < 3 {
			return invalid("zone %d (%s): polygon must have at least 3 points", i, z.Name)
		}
		for _, p := range z.Points {
			if !unit(p[0]) || !unit(p[1]) {
				return invalid("zone %d (%s): point %v outside [0,1]", i, z.Name, p)
			}
		}
		if z.LoiterSeconds < 0 {
			return invalid("zone %d (%s): loiter_seconds must not be negative", i, z.Name)
		}
	}
	for i, l := range a.Lines {
		for _, v := range l.Points {
			if !unit(v) {
				return invalid("line %d (%s): point %v outside [0,1]", i, l.Name, l.Points)
			}
		}
		if l.Points[0] == l.Points[2] && l.Points[1] == l.Points[3] {
			return invalid("line %d (%s): endpoints must differ", i, l.Name)
		}
	}

	p := a.Predictor
	if p.LoiterDurationSeconds < 0 || p.AnomalyHigh < 0 || p.TrackGapSeconds <= 0 {
		return invalid("predictor thresholds must not be negative and track_gap_seconds must be positive")
	}
	if p.NightStartHour < 0 || p.NightStartHour > 23 || p.NightEndHour < 0 || p.NightEndHour > 23 {
		return invalid("night hours must be within 0..23")
	}

	if a.ReID.SimilarityThreshold <= 0 || a.ReID.SimilarityThreshold > 1 {
		return invalid("reid.similarity_threshold must be within (0,1]")
	}
	if a.ReID.Dimension < 0 {
		return invalid("reid.dimension must not be negative")
	}

	al := a.Alerts
	if al.MinThreat < 0 || al.CooldownSeconds < 0 || al.MediumLevel < 0 || al.HighLevel < al.MediumLevel {
		return invalid("alert levels must be non-negative and high_level >= medium_level")
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// CycleInterval returns the sleep between analysis cycles, clamped to [5s,60s].
func (a *Analytics) CycleInterval() time.Duration {
	d := time.Duration(a.CycleIntervalSeconds * float64(time.Second))
	return min(max(d, minCycleInterval), maxCycleInterval)
}

// IdleMultiplier returns the idle-skip sleep multiplier, clamped to [1,5].
func (a *Analytics) IdleMultiplier() float64 {
	return min(max(a.IdleSkipMultiplier, 1), maxIdleSkip)
}

// IdleAfter returns how long without motion before idle skipping starts.
// Zero disables idle skipping.
func (a *Analytics) IdleAfter() time.Duration {
	return seconds(a.IdleSkipAfterSeconds)
}

// DedupCooldown returns the event deduplication cooldown.
func (a *Analytics) DedupCooldown() time.Duration {
	return seconds(a.DedupCooldownSeconds)
}

// LoiterCycles returns how many consecutive occupied cycles trigger loitering
// in zone, never less than one.
func (a *Analytics) LoiterCycles(zone models.Zone) int {
	loiter := a.LoiterSeconds
	if zone.LoiterSeconds > 0 {
		loiter = zone.LoiterSeconds
	}
	cycles := int(loiter / a.CycleInterval().Seconds())
	return max(1, cycles)
}

// Clone returns a deep copy.
func (a *Analytics) Clone() *Analytics {
	c := *a
	c.Zones = make([]models.Zone, len(a.Zones))
	for i, z := range a.Zones {
		z.Points = append([][2]float64(nil), z.Points...)
		c.Zones[i] = z
	}
	c.Lines = append([]models.Line(nil), a.Lines...)
	c.Alerts.Kinds = append([]models.EventKind(nil), a.Alerts.Kinds...)
	return &c
}

// YAML encodes the configuration.
func (a *Analytics) YAML() ([]byte, error) {
	return yaml.Marshal(a)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// AnalyticsStore holds the active Analytics and swaps it atomically.
type AnalyticsStore struct {
	current atomic.Pointer[Analytics]

	mu          sync.Mutex // serializes Apply and guards subscribers
	version     uint64
	subscribers []func(*Analytics)
}

// NewAnalyticsStore validates initial and makes it the active configuration.
func NewAnalyticsStore(initial *Analytics) (*AnalyticsStore, error) {
	s := &AnalyticsStore{}
	if err := s.Apply(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active configuration. Callers must not modify it.
func (s *AnalyticsStore) Current() *Analytics {
	return s.current.Load()
}

// Apply validates next and swaps it in. An invalid configuration is rejected
// and the previous one stays active.
func (s *AnalyticsStore) Apply(next *Analytics) error {
	if next == nil {
		return fmt.Errorf("%w: empty configuration", models.ErrConfigurationInvalid)
	}
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := next.Clone()
	s.version++
	snapshot.Version = s.version
	s.current.Store(snapshot)

	for _, fn := range s.subscribers {
		fn(snapshot)
	}
	return nil
}

// Reload re-reads path and applies it.
func (s *AnalyticsStore) Reload(path string) error {
	a, err := LoadAnalytics(path)
	if err != nil {
		return err
	}
	return s.Apply(a)
}

// OnApply registers fn to run after every successful apply, and once
// immediately with the active configuration.
func (s *AnalyticsStore) OnApply(fn func(*Analytics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
	if cur := s.current.Load(); cur != nil {
		fn(cur)
	}
}
