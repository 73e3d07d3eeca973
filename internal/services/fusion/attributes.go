package fusion

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Bwilkie91/camera/internal/models"
)

const (
	referenceHeightCM = 170.0
	minHeightCM       = 120.0
	maxHeightCM       = 220.0
	minBoxPixels      = 30.0
	minBuildPixels    = 20.0
)

// PrimaryPerson returns the largest person box.
func PrimaryPerson(persons []models.Object) (models.Object, bool) {
	var best models.Object
	bestArea := -1.0
	for _, p := range persons {
		if area := p.Width() * p.Height(); area > bestArea {
			best, bestArea = p, area
		}
	}
	return best, bestArea >= 0
}

// VideoAttributes derives build, height and behavior labels for one cycle.
// frameHeight is the pixel height, zero when unknown.
func VideoAttributes(frame *models.DetectionFrame, persons []models.Object, kind models.EventKind) models.VideoAttributes {
	out := models.VideoAttributes{
		Build:       "unknown",
		Emotion:     orNone(frame.Emotion),
		Stress:      emotionStress(frame.Emotion),
		Suspicious:  suspiciousLabel(kind),
		Scene:       orNone(frame.Scene),
		PeriodOfDay: PeriodOfDay(frame.Timestamp),
		Clothing:    orNone(frame.Clothing),
	}

	primary, ok := PrimaryPerson(persons)
	if !ok {
		return out
	}

	w, h := float64(frame.Width), float64(frame.Height)
	if w <= 0 || h <= 0 {
		// Assume a square frame of the reference size
		w, h = 1000, 1000
	}
	bw, bh := primary.Width()*w, primary.Height()*h

	if bh >= minBoxPixels {
		ref := max(100, h*0.45)
		cm := float64(int(referenceHeightCM * bh / ref))
		cm = min(max(cm, minHeightCM), maxHeightCM)
		out.HeightCM = &cm
	}
	if bh > minBuildPixels {
		switch ar := bw / bh; {
		case ar < 0.35:
			out.Build = "slim"
		case ar > 0.5:
			out.Build = "heavy"
		default:
			out.Build = "medium"
		}
	}
	return out
}

// PeriodOfDay buckets a UTC hour into night, dawn, day or dusk.
func PeriodOfDay(ts time.Time) string {
	switch h := ts.UTC().Hour(); {
	case h < 5 || h >= 21:
		return "night"
	case h < 7:
		return "dawn"
	case h < 17:
		return "day"
	default:
		return "dusk"
	}
}

func emotionStress(emotion string) string {
	switch emotion {
	case "":
		return models.None
	case "Angry", "Fear", "Sad", "Disgust":
		return "high"
	case "Surprise":
		return "medium"
	default:
		return "low"
	}
}

func suspiciousLabel(kind models.EventKind) string {
	switch kind {
	case models.KindFall:
		return "person_down"
	case models.KindLoitering:
		return "loitering"
	case models.KindLineCross:
		return "line_crossing"
	default:
		return models.None
	}
}

// EventAnomaly is the anomaly score implied by an accepted event kind.
func EventAnomaly(kind models.EventKind) float64 {
	switch kind {
	case models.KindFall:
		return 0.7
	case models.KindLoitering:
		return 0.5
	case models.KindLineCross:
		return 0.6
	default:
		return 0
	}
}

// ObjectSummary renders label counts sorted by label, e.g. "car:1, person:2".
func ObjectSummary(objects []models.Object) string {
	if len(objects) == 0 {
		return models.None
	}
	counts := make(map[string]int)
	for _, o := range objects {
		counts[o.Label]++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s:%d", l, counts[l])
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return models.None
	}
	return s
}
