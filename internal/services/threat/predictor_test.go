package threat

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/models"
)

var (
	noon     = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	midnight = time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)
)

type stubModel bool

func (s stubModel) IsOutlier([]float64) bool { return bool(s) }

func defaultRules() config.PredictorRules {
	return config.DefaultAnalytics().Predictor
}

func TestPredict_Rules(t *testing.T) {
	tests := []struct {
		name      string
		in        Input
		score     int
		intent    models.Intent
		flags     []string
		unflagged []string
	}{
		{
			name:   "short daytime visit passes",
			in:     Input{DwellSeconds: 20, Timestamp: noon, Known: true, ThreatScore: 5},
			score:  5,
			intent: models.IntentPassing,
		},
		{
			name:   "long known loiter by day",
			in:     Input{DwellSeconds: 400, Timestamp: noon, Known: true, Loitering: true},
			score:  40,
			intent: models.IntentNormal,
			flags:  []string{FlagLoiteringLong},
		},
		{
			name:   "unknown loiterer is scouting",
			in:     Input{DwellSeconds: 150, Timestamp: noon, Loitering: true},
			score:  35,
			intent: models.IntentScouting,
			flags:  []string{FlagUnknownLoitering},
		},
		{
			name:      "night without loitering only flags",
			in:        Input{DwellSeconds: 10, Timestamp: midnight, Known: true},
			score:     0,
			intent:    models.IntentPassing,
			flags:     []string{FlagNighttime},
			unflagged: []string{FlagHighRisk},
		},
		{
			name:   "high anomaly",
			in:     Input{DwellSeconds: 90, Timestamp: noon, Known: true, AnomalyScore: 0.7},
			score:  30,
			intent: models.IntentNormal,
			flags:  []string{FlagHighAnomaly},
		},
		{
			name:   "high risk combination",
			in:     Input{DwellSeconds: 600, Timestamp: midnight, Loitering: true},
			score:  75,
			intent: models.IntentAggressive,
			flags:  []string{FlagLoiteringLong, FlagNighttime, FlagUnknownLoitering, FlagHighRisk},
		},
		{
			name:   "input above floors is kept",
			in:     Input{DwellSeconds: 10, Timestamp: noon, Known: true, ThreatScore: 90},
			score:  90,
			intent: models.IntentAggressive,
		},
		{
			name:   "input clamped",
			in:     Input{DwellSeconds: 10, Timestamp: noon, Known: true, ThreatScore: 140},
			score:  100,
			intent: models.IntentAggressive,
		},
	}

	p := NewPredictor(defaultRules())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Predict(tt.in)
			assert.Equal(t, tt.score, got.ThreatScore)
			assert.Equal(t, tt.intent, got.Intent)
			assert.False(t, got.IsAnomaly)
			for _, f := range tt.flags {
				assert.Contains(t, got.Flags, f)
			}
			for _, f := range tt.unflagged {
				assert.NotContains(t, got.Flags, f)
			}
		})
	}
}

func TestPredict_WithAndWithoutModel(t *testing.T) {
	in := Input{DwellSeconds: 30, Timestamp: noon, Known: true, ThreatScore: 5}

	p := NewPredictor(defaultRules())
	assert.False(t, p.HasModel())
	ruleOnly := p.Predict(in)
	assert.Equal(t, 5, ruleOnly.ThreatScore)
	assert.Equal(t, models.IntentPassing, ruleOnly.Intent)

	p.SetModel(stubModel(false))
	assert.True(t, p.HasModel())
	assert.Equal(t, ruleOnly, p.Predict(in))

	p.SetModel(stubModel(true))
	flagged := p.Predict(in)
	assert.True(t, flagged.IsAnomaly)
	assert.Equal(t, 25, flagged.ThreatScore)
	assert.Equal(t, models.IntentScouting, flagged.Intent)
	assert.Contains(t, flagged.Flags, FlagMLAnomaly)

	rules := defaultRules()
	rules.UseIsolationForest = false
	p.SetRules(rules)
	assert.Equal(t, ruleOnly, p.Predict(in))

	p.SetRules(defaultRules())
	p.SetModel(nil)
	assert.Equal(t, ruleOnly, p.Predict(in))
}

func TestPredict_NeverDecreasesInput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := NewPredictor(defaultRules())
	p.SetModel(stubModel(true))

	for range 500 {
		in := Input{
			DwellSeconds: rng.Float64() * 1000,
			Timestamp:    noon.Add(time.Duration(rng.Intn(24)) * time.Hour),
			Loitering:    rng.Intn(2) == 0,
			AnomalyScore: rng.Float64(),
			Known:        rng.Intn(2) == 0,
			ThreatScore:  rng.Intn(101),
		}
		got := p.Predict(in)
		require.GreaterOrEqual(t, got.ThreatScore, in.ThreatScore)
		require.LessOrEqual(t, got.ThreatScore, 100)
	}
}

func TestIsNight(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC) }

	assert.True(t, IsNight(at(23), 22, 6))
	assert.True(t, IsNight(at(2), 22, 6))
	assert.False(t, IsNight(at(6), 22, 6))
	assert.False(t, IsNight(at(12), 22, 6))
	assert.True(t, IsNight(at(1), 0, 5))
	assert.False(t, IsNight(at(5), 0, 5))
	assert.False(t, IsNight(at(3), 4, 4))
}

func TestFeatures(t *testing.T) {
	got := Features(Input{DwellSeconds: 9000, DetectionCount: 25, ThreatScore: 40, AnomalyScore: 3, Scene: "Outdoor"})
	assert.Equal(t, []float64{2, 0.5, 0.4, 2, 1}, got)

	got = Features(InputFromTrack(models.Track{DwellSeconds: 1800, DetectionCount: 10, ThreatMax: 10, Scene: "Indoor"}))
	assert.Equal(t, []float64{0.5, 0.2, 0.1, 0, 0}, got)
}

func TestRetrain(t *testing.T) {
	p := NewPredictor(defaultRules())

	err := p.Retrain([]models.Track{{DwellSeconds: 10, DetectionCount: 1}})
	require.ErrorIs(t, err, ErrNotEnoughSamples)
	assert.False(t, p.HasModel())

	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(3))
	var history []models.Track
	for i := range 120 {
		dwell := 30 + rng.Float64()*30
		history = append(history, models.Track{
			ID:             string(rune('a' + i%26)),
			PersonID:       "p1",
			Start:          start,
			End:            start.Add(time.Duration(dwell) * time.Second),
			DwellSeconds:   dwell,
			DetectionCount: 3 + rng.Intn(3),
			ThreatMax:      rng.Intn(10),
			AnomalyMax:     rng.Float64() * 0.1,
		})
	}
	require.NoError(t, p.Retrain(history))
	require.True(t, p.HasModel())

	odd := p.Predict(Input{
		DwellSeconds:   7000,
		Timestamp:      noon,
		Known:          true,
		ThreatScore:    5,
		DetectionCount: 100,
		AnomalyScore:   0.45,
		Scene:          "Outdoor",
	})
	assert.True(t, odd.IsAnomaly)
	assert.Contains(t, odd.Flags, FlagMLAnomaly)
	assert.GreaterOrEqual(t, odd.ThreatScore, 25)
}
