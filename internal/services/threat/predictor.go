package threat

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/models"
)

// Rule flags.
const (
	FlagLoiteringLong    = "loitering_long"
	FlagNighttime        = "nighttime"
	FlagUnknownLoitering = "unknown_person_loitering"
	FlagHighAnomaly      = "high_anomaly"
	FlagHighRisk         = "high_risk_combination"
	FlagMLAnomaly        = "ml_anomaly"
)

const (
	floorLoiteringLong = 40
	floorNightLoiter   = 50
	floorUnknown       = 35
	floorHighAnomaly   = 30
	floorHighRisk      = 75
	floorMLAnomaly     = 25

	aggressiveScore = 70
	scoutingDwell   = 120
	passingDwell    = 60
	passingThreat   = 20
)

// Model is a fitted anomaly model over track features.
type Model interface {
	IsOutlier(features []float64) bool
}

// Input is the state of a track at evaluation time.
type Input struct {
	DwellSeconds   float64
	Timestamp      time.Time
	Loitering      bool
	AnomalyScore   float64
	Known          bool
	ThreatScore    int
	DetectionCount int
	Scene          string
}

// InputFromTrack evaluates a track as of its last detection.
func InputFromTrack(t models.Track) Input {
	return Input{
		DwellSeconds:   t.DwellSeconds,
		Timestamp:      t.End,
		Loitering:      t.Loitered,
		AnomalyScore:   t.AnomalyMax,
		Known:          t.Known(),
		ThreatScore:    t.ThreatMax,
		DetectionCount: t.DetectionCount,
		Scene:          t.Scene,
	}
}

// Prediction is the output of Predict.
type Prediction struct {
	ThreatScore int
	Intent      models.Intent
	IsAnomaly   bool
	Flags       []string
}

type modelBox struct{ m Model }

// Predictor combines rule escalation with an optional anomaly model. The
// rules and the model can be swapped while cameras are predicting.
type Predictor struct {
	rules  atomic.Pointer[config.PredictorRules]
	model  atomic.Pointer[modelBox]
	forest ForestOptions
}

// NewPredictor creates a rule-only predictor.
func NewPredictor(rules config.PredictorRules) *Predictor {
	p := &Predictor{forest: DefaultForestOptions()}
	p.SetRules(rules)
	return p
}

// SetRules replaces the rule thresholds.
func (p *Predictor) SetRules(rules config.PredictorRules) {
	r := rules
	p.rules.Store(&r)
}

// SetModel installs a fitted model. nil restores rule-only scoring.
func (p *Predictor) SetModel(m Model) {
	if m == nil {
		p.model.Store(nil)
		return
	}
	p.model.Store(&modelBox{m: m})
}

// HasModel reports whether an anomaly model is installed.
func (p *Predictor) HasModel() bool {
	return p.model.Load() != nil
}

// SetForestOptions changes the options used by Retrain.
func (p *Predictor) SetForestOptions(opts ForestOptions) {
	p.forest = opts
}

// Retrain fits a new isolation forest on finalized tracks and installs it.
// The previous model stays in place when fitting fails.
func (p *Predictor) Retrain(tracks []models.Track) error {
	samples := make([][]float64, 0, len(tracks))
	for _, t := range tracks {
		samples = append(samples, Features(InputFromTrack(t)))
	}
	f, err := FitForest(samples, p.forest)
	if err != nil {
		return err
	}
	p.SetModel(f)
	return nil
}

// Predict scores a track. The result is never below the input threat score.
func (p *Predictor) Predict(in Input) Prediction {
	rules := p.rules.Load()
	score := clamp(in.ThreatScore)
	var flags []string
	raise := func(flag string, floor int) {
		flags = append(flags, flag)
		score = max(score, floor)
	}

	if in.Loitering && in.DwellSeconds >= rules.LoiterDurationSeconds {
		raise(FlagLoiteringLong, floorLoiteringLong)
	}
	if IsNight(in.Timestamp, rules.NightStartHour, rules.NightEndHour) {
		flags = append(flags, FlagNighttime)
		if in.Loitering {
			score = max(score, floorNightLoiter)
		}
	}
	if !in.Known && in.Loitering {
		raise(FlagUnknownLoitering, floorUnknown)
	}
	if in.AnomalyScore >= rules.AnomalyHigh {
		raise(FlagHighAnomaly, floorHighAnomaly)
	}
	if slices.Contains(flags, FlagLoiteringLong) &&
		slices.Contains(flags, FlagNighttime) &&
		slices.Contains(flags, FlagUnknownLoitering) {
		raise(FlagHighRisk, floorHighRisk)
	}

	anomalous := false
	if box := p.model.Load(); box != nil && rules.UseIsolationForest {
		if box.m.IsOutlier(Features(in)) {
			anomalous = true
			raise(FlagMLAnomaly, floorMLAnomaly)
		}
	}

	score = clamp(score)
	return Prediction{
		ThreatScore: score,
		Intent:      deriveIntent(in, score, flags),
		IsAnomaly:   anomalous,
		Flags:       flags,
	}
}

func deriveIntent(in Input, score int, flags []string) models.Intent {
	switch {
	case slices.Contains(flags, FlagHighRisk) || score >= aggressiveScore:
		return models.IntentAggressive
	case slices.Contains(flags, FlagMLAnomaly) || (in.DwellSeconds > scoutingDwell && !in.Known):
		return models.IntentScouting
	case in.DwellSeconds < passingDwell && in.ThreatScore < passingThreat:
		return models.IntentPassing
	default:
		return models.IntentNormal
	}
}

// IsNight reports whether ts falls in [start, end) hours UTC. A start after
// end wraps past midnight.
func IsNight(ts time.Time, start, end int) bool {
	h := ts.UTC().Hour()
	if start > end {
		return h >= start || h < end
	}
	return h >= start && h < end
}

// Features returns the anomaly model feature vector for a track.
func Features(in Input) []float64 {
	outdoor := 0.0
	if in.Scene == "Outdoor" {
		outdoor = 1
	}
	return []float64{
		min(in.DwellSeconds/3600, 2),
		min(float64(in.DetectionCount)/50, 2),
		float64(in.ThreatScore) / 100,
		min(in.AnomalyScore, 2),
		outdoor,
	}
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
