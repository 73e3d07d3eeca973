package threat

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ErrNotEnoughSamples is returned when a model is fit on too few tracks.
var ErrNotEnoughSamples = errors.New("not enough samples to fit anomaly model")

const eulerGamma = 0.5772156649015329

// ForestOptions parameterise FitForest.
type ForestOptions struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
	MinSamples    int
}

// DefaultForestOptions returns 100 trees over subsamples of up to 256 rows
// with 10% contamination.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
		MinSamples:    10,
	}
}

type node struct {
	feature     int
	split       float64
	left, right *node
	size        int // leaf only
}

// Forest is an isolation forest. It is immutable once fit and safe for
// concurrent use.
type Forest struct {
	trees      []*node
	sampleSize int
	threshold  float64
	dims       int
}

// FitForest fits an isolation forest on equal-length feature vectors. The
// outlier threshold is the (1 - contamination) quantile of the training
// scores.
func FitForest(samples [][]float64, opts ForestOptions) (*Forest, error) {
	if opts.MinSamples < 2 {
		opts.MinSamples = 2
	}
	if len(samples) < opts.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughSamples, len(samples), opts.MinSamples)
	}
	dims := len(samples[0])
	for i, s := range samples {
		if len(s) != dims || dims == 0 {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(s), dims)
		}
	}
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	psi := opts.SampleSize
	if psi <= 0 || psi > len(samples) {
		psi = len(samples)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	limit := int(math.Ceil(math.Log2(float64(psi))))

	f := &Forest{trees: make([]*node, 0, opts.Trees), sampleSize: psi, dims: dims}
	for range opts.Trees {
		idx := rng.Perm(len(samples))[:psi]
		rows := make([][]float64, psi)
		for i, j := range idx {
			rows[i] = samples[j]
		}
		f.trees = append(f.trees, grow(rng, rows, 0, limit))
	}

	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = f.Score(s)
	}
	slices.Sort(scores)
	q := 1 - opts.Contamination
	if q <= 0 || q > 1 {
		q = 0.9
	}
	f.threshold = stat.Quantile(q, stat.Empirical, scores, nil)
	return f, nil
}

func grow(rng *rand.Rand, rows [][]float64, depth, limit int) *node {
	if depth >= limit || len(rows) <= 1 {
		return &node{size: len(rows)}
	}

	var candidates []int
	for j := range rows[0] {
		lo, hi := span(rows, j)
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(rows)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := span(rows, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return &node{
		feature: feature,
		split:   split,
		left:    grow(rng, left, depth+1, limit),
		right:   grow(rng, right, depth+1, limit),
	}
}

func span(rows [][]float64, j int) (float64, float64) {
	lo, hi := rows[0][j], rows[0][j]
	for _, r := range rows[1:] {
		lo = math.Min(lo, r[j])
		hi = math.Max(hi, r[j])
	}
	return lo, hi
}

// averagePath is the mean unsuccessful search length in a binary search
// tree of n nodes.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

func pathLength(x []float64, n *node, depth int) float64 {
	for n.left != nil {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// Score returns the anomaly score in (0, 1]. Scores near 1 are isolated
// quickly and therefore anomalous.
func (f *Forest) Score(x []float64) float64 {
	if len(x) != f.dims {
		return 0
	}
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))
	c := averagePath(f.sampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

// Threshold returns the fitted outlier threshold.
func (f *Forest) Threshold() float64 {
	return f.threshold
}

// IsOutlier reports whether x scores above the fitted threshold.
func (f *Forest) IsOutlier(x []float64) bool {
	return f.Score(x) > f.threshold
}
