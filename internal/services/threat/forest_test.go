package threat

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cluster(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{
			0.1 + 0.05*rng.Float64(),
			0.1 + 0.05*rng.Float64(),
			0.1 + 0.05*rng.Float64(),
			0.1 + 0.05*rng.Float64(),
			0,
		}
	}
	return out
}

func TestFitForest_SeparatesOutlier(t *testing.T) {
	f, err := FitForest(cluster(300, 11), DefaultForestOptions())
	require.NoError(t, err)

	center := []float64{0.125, 0.125, 0.125, 0.125, 0}
	far := []float64{2, 2, 1, 2, 1}

	assert.Less(t, f.Score(center), f.Score(far))
	assert.False(t, f.IsOutlier(center))
	assert.True(t, f.IsOutlier(far))
	assert.Greater(t, f.Threshold(), 0.0)
	assert.Less(t, f.Threshold(), 1.0)
}

func TestFitForest_Deterministic(t *testing.T) {
	data := cluster(200, 5)
	a, err := FitForest(data, DefaultForestOptions())
	require.NoError(t, err)
	b, err := FitForest(data, DefaultForestOptions())
	require.NoError(t, err)

	probe := []float64{0.3, 0.1, 0.12, 0.2, 0}
	assert.Equal(t, a.Score(probe), b.Score(probe))
	assert.Equal(t, a.Threshold(), b.Threshold())
}

func TestFitForest_Rejects(t *testing.T) {
	_, err := FitForest(cluster(5, 1), DefaultForestOptions())
	assert.ErrorIs(t, err, ErrNotEnoughSamples)

	bad := cluster(20, 1)
	bad[3] = []float64{1, 2}
	_, err = FitForest(bad, DefaultForestOptions())
	assert.Error(t, err)
}

func TestForest_ConstantData(t *testing.T) {
	same := make([][]float64, 20)
	for i := range same {
		same[i] = []float64{1, 1, 1, 1, 1}
	}
	f, err := FitForest(same, DefaultForestOptions())
	require.NoError(t, err)
	assert.False(t, f.IsOutlier([]float64{1, 1, 1, 1, 1}))
	assert.Equal(t, 0.0, f.Score([]float64{1, 2}))
}

func TestAveragePath(t *testing.T) {
	assert.Equal(t, 0.0, averagePath(1))
	assert.Equal(t, 1.0, averagePath(2))
	assert.InDelta(t, 10.24, averagePath(256), 0.01)
}
