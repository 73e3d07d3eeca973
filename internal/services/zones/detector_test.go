package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/geometry"
	"github.com/Bwilkie91/camera/internal/models"
)

func rightHalfConfig() *config.Analytics {
	cfg := config.DefaultAnalytics()
	cfg.CycleIntervalSeconds = 10
	cfg.LoiterSeconds = 30
	cfg.Zones = []models.Zone{{Name: "right", Points: [][2]float64{{0.5, 0}, {1, 0}, {1, 1}, {0.5, 1}}}}
	cfg.Lines = []models.Line{{Name: "mid", Points: [4]float64{0.3, 0, 0.3, 1}}}
	return cfg
}

func TestDetector_DwellThreshold(t *testing.T) {
	cfg := rightHalfConfig()
	d := NewDetector()
	inside := []geometry.Point{{X: 0.75, Y: 0.5}}

	r1 := d.Evaluate(cfg, inside, 1, 1)
	assert.False(t, r1.Loiter)
	assert.Equal(t, []int{0}, r1.ZonesWithPerson)
	assert.Equal(t, 1, d.Dwell(0))

	r2 := d.Evaluate(cfg, inside, 1, 1)
	assert.False(t, r2.Loiter)

	r3 := d.Evaluate(cfg, inside, 1, 1)
	assert.True(t, r3.Loiter, "third consecutive cycle should trigger loitering")
	assert.Equal(t, 0, d.Dwell(0), "counter resets after firing")

	r4 := d.Evaluate(cfg, inside, 1, 1)
	assert.False(t, r4.Loiter)
	assert.Equal(t, 1, d.Dwell(0))
}

func TestDetector_DwellResetsWhenZoneEmpties(t *testing.T) {
	cfg := rightHalfConfig()
	d := NewDetector()
	inside := []geometry.Point{{X: 0.75, Y: 0.5}}
	outside := []geometry.Point{{X: 0.1, Y: 0.5}}

	d.Evaluate(cfg, inside, 1, 1)
	d.Evaluate(cfg, inside, 1, 1)
	r := d.Evaluate(cfg, outside, 1, 1)
	assert.Empty(t, r.ZonesWithPerson)
	assert.Equal(t, 0, d.Dwell(0))

	assert.False(t, d.Evaluate(cfg, inside, 1, 1).Loiter)
}

func TestDetector_LineCross(t *testing.T) {
	cfg := rightHalfConfig()
	d := NewDetector()

	first := d.Evaluate(cfg, []geometry.Point{{X: 0.2, Y: 0.5}}, 1, 1)
	assert.False(t, first.LineCross, "no previous centroids on the first cycle")

	crossed := d.Evaluate(cfg, []geometry.Point{{X: 0.4, Y: 0.5}}, 1, 1)
	assert.True(t, crossed.LineCross)

	stayed := d.Evaluate(cfg, []geometry.Point{{X: 0.45, Y: 0.6}}, 1, 1)
	assert.False(t, stayed.LineCross)
}

func TestDetector_PixelSpace(t *testing.T) {
	cfg := rightHalfConfig()
	cfg.LoiterSeconds = 10
	d := NewDetector()

	r := d.Evaluate(cfg, []geometry.Point{{X: 500, Y: 240}}, 640, 480)
	assert.True(t, r.Loiter)
	assert.Equal(t, []int{0}, r.ZonesWithPerson)
}

func TestDetector_ResetsOnConfigVersion(t *testing.T) {
	store, err := config.NewAnalyticsStore(rightHalfConfig())
	require.NoError(t, err)
	d := NewDetector()
	inside := []geometry.Point{{X: 0.75, Y: 0.5}}

	d.Evaluate(store.Current(), inside, 1, 1)
	d.Evaluate(store.Current(), inside, 1, 1)
	require.Equal(t, 2, d.Dwell(0))

	require.NoError(t, store.Apply(rightHalfConfig()))
	r := d.Evaluate(store.Current(), inside, 1, 1)
	assert.False(t, r.Loiter)
	assert.Equal(t, 1, d.Dwell(0))
}

func TestCandidatePriority(t *testing.T) {
	assert.Equal(t, models.KindLineCross, Candidate(Result{LineCross: true, Loiter: true}, true))
	assert.Equal(t, models.KindLoitering, Candidate(Result{Loiter: true}, true))
	assert.Equal(t, models.KindMotion, Candidate(Result{}, true))
	assert.Equal(t, models.KindNone, Candidate(Result{}, false))
}
