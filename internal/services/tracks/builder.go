package tracks

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Bwilkie91/camera/internal/models"
)

// DefaultGap is the inter-detection gap that closes a track.
const DefaultGap = 300 * time.Second

// Observation is one detection of a subject. An empty PersonID is the
// camera's unidentified subject.
type Observation struct {
	PersonID     string
	Timestamp    time.Time
	ThreatScore  int
	AnomalyScore float64
	Scene        string
	Kind         models.EventKind
}

// Builder groups a camera's detections into tracks by time gap. It is owned
// by a single camera worker.
type Builder struct {
	cameraID string
	gap      time.Duration
	open     map[string]*models.Track
	newID    func() string
}

// NewBuilder creates a builder for one camera.
func NewBuilder(cameraID string, gap time.Duration) *Builder {
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Builder{
		cameraID: cameraID,
		gap:      gap,
		open:     make(map[string]*models.Track),
		newID:    uuid.NewString,
	}
}

// SetGap changes the gap for future observations.
func (b *Builder) SetGap(gap time.Duration) {
	if gap > 0 {
		b.gap = gap
	}
}

// Observe extends the subject's open track or starts a new one. It returns
// a copy of the updated track and any track the observation closed.
func (b *Builder) Observe(o Observation) (models.Track, []models.Track) {
	var finalized []models.Track

	tr, ok := b.open[o.PersonID]
	if ok && o.Timestamp.Sub(tr.End) > b.gap {
		finalized = append(finalized, b.finalize(o.PersonID))
		ok = false
	}

	if !ok {
		tr = &models.Track{
			ID:       b.newID(),
			CameraID: b.cameraID,
			PersonID: o.PersonID,
			Start:    o.Timestamp,
			End:      o.Timestamp,
			Intent:   models.IntentUnknown,
		}
		b.open[o.PersonID] = tr
	}

	if o.Timestamp.After(tr.End) {
		tr.End = o.Timestamp
	}
	tr.DetectionCount++
	tr.DwellSeconds = tr.End.Sub(tr.Start).Seconds()
	tr.ThreatMax = max(tr.ThreatMax, o.ThreatScore)
	tr.AnomalyMax = math.Max(tr.AnomalyMax, o.AnomalyScore)
	if o.Scene != "" && o.Scene != models.None {
		tr.Scene = o.Scene
	}
	if o.Kind == models.KindLoitering {
		tr.Loitered = true
	}

	return snapshot(tr), finalized
}

// Annotate records a prediction on the subject's open track. The threat
// maximum never decreases.
func (b *Builder) Annotate(personID string, threat int, intent models.Intent, flags []string) {
	tr, ok := b.open[personID]
	if !ok {
		return
	}
	tr.ThreatMax = max(tr.ThreatMax, threat)
	tr.Intent = intent
	for _, f := range flags {
		if !slices.Contains(tr.Flags, f) {
			tr.Flags = append(tr.Flags, f)
		}
	}
}

// Sweep closes every open track whose last detection is more than the gap
// before now.
func (b *Builder) Sweep(now time.Time) []models.Track {
	var finalized []models.Track
	for id, tr := range b.open {
		if now.Sub(tr.End) > b.gap {
			finalized = append(finalized, b.finalize(id))
		}
	}
	sortTracks(finalized)
	return finalized
}

// Flush closes every open track, as when the stream ends.
func (b *Builder) Flush() []models.Track {
	finalized := make([]models.Track, 0, len(b.open))
	for id := range b.open {
		finalized = append(finalized, b.finalize(id))
	}
	sortTracks(finalized)
	return finalized
}

// OpenCount returns the number of open tracks.
func (b *Builder) OpenCount() int {
	return len(b.open)
}

func (b *Builder) finalize(personID string) models.Track {
	tr := b.open[personID]
	delete(b.open, personID)
	tr.Finalized = true
	return snapshot(tr)
}

func snapshot(tr *models.Track) models.Track {
	c := *tr
	c.Flags = append([]string(nil), tr.Flags...)
	return c
}

func sortTracks(ts []models.Track) {
	slices.SortFunc(ts, func(a, b models.Track) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if a.PersonID < b.PersonID {
			return -1
		}
		if a.PersonID > b.PersonID {
			return 1
		}
		return 0
	})
}

// Build groups a time-ordered batch of observations into finalized tracks.
func Build(cameraID string, observations []Observation, gap time.Duration) []models.Track {
	b := NewBuilder(cameraID, gap)
	var out []models.Track
	for _, o := range observations {
		_, closed := b.Observe(o)
		out = append(out, closed...)
	}
	out = append(out, b.Flush()...)
	sortTracks(out)
	return out
}
