package reid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Bwilkie91/camera/internal/models"
)

// DefaultThreshold is the minimum cosine similarity for a match.
const DefaultThreshold = 0.85

// Match is the nearest stored embedding to a query.
type Match struct {
	EmbeddingID int64
	PersonID    string
	Similarity  float64
}

// Normalize returns an L2-normalized copy of v. Empty, zero and non-finite
// vectors are malformed.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", models.ErrInputMalformed)
	}
	f := toFloat64(v)
	norm := floats.Norm(f, 2)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w: embedding norm %v", models.ErrInputMalformed, norm)
	}
	out := make([]float32, len(v))
	for i, x := range f {
		out[i] = float32(x / norm)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, clipped
// to [-1,1]. Vectors of different length have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	fa, fb := toFloat64(a), toFloat64(b)
	na, nb := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(fa, fb) / (na * nb)
	return math.Max(-1, math.Min(1, sim))
}

// BestMatch scans stored in order and returns the most similar embedding of
// the same dimension whose similarity is at least threshold. On equal
// similarity the first one in storage order wins.
func BestMatch(query []float32, stored []models.Embedding, threshold float64) (Match, bool) {
	best := Match{Similarity: math.Inf(-1)}
	found := false
	for _, e := range stored {
		if len(e.Vector) != len(query) {
			continue
		}
		sim := CosineSimilarity(query, e.Vector)
		if sim > best.Similarity {
			best = Match{EmbeddingID: e.ID, PersonID: e.PersonID, Similarity: sim}
			found = true
		}
	}
	if !found || best.Similarity < threshold {
		return Match{}, false
	}
	return best, true
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
