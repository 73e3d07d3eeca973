package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/geometry"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
	"github.com/Bwilkie91/camera/internal/services/alerts"
	"github.com/Bwilkie91/camera/internal/services/dedup"
	"github.com/Bwilkie91/camera/internal/services/fusion"
	"github.com/Bwilkie91/camera/internal/services/reid"
	"github.com/Bwilkie91/camera/internal/services/temporal"
	"github.com/Bwilkie91/camera/internal/services/threat"
	"github.com/Bwilkie91/camera/internal/services/tracks"
	"github.com/Bwilkie91/camera/internal/services/zones"
)

// MotionDetector decides frame-difference motion for a camera.
type MotionDetector interface {
	DetectMotion(image []byte, cameraID string) (bool, error)
}

// Identifier resolves an embedding to a person.
type Identifier interface {
	Resolve(ctx context.Context, cameraID string, vector []float32, seen time.Time, a models.Appearance) (reid.Identity, error)
}

// Predictor scores a track.
type Predictor interface {
	Predict(in threat.Input) threat.Prediction
}

// Dispatcher turns accepted events into alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, t alerts.Trigger) (bool, error)
	Severity(score int) models.Severity
}

// EventSink persists accepted event notifications.
type EventSink interface {
	InsertEvent(ctx context.Context, n *models.EventNotification) (int64, error)
}

// CanonicalSink receives every cycle's canonical record.
type CanonicalSink interface {
	Add(ctx context.Context, event models.CanonicalEvent)
}

// TrackSink persists finalized tracks.
type TrackSink interface {
	InsertTrack(ctx context.Context, t *models.Track) error
}

// VisitRecorder accumulates per-person visit statistics.
type VisitRecorder interface {
	RecordVisit(ctx context.Context, personID string, dwellSeconds float64) error
}

// Notifier pushes typed messages to viewers.
type Notifier interface {
	Notify(kind string, v any) error
}

// Deps are the collaborators shared by every camera's analyzer. Only
// Config and Logger are required.
type Deps struct {
	Config       *config.AnalyticsStore
	SiteID       string
	Motion       MotionDetector
	Identity     Identifier
	Predictor    Predictor
	Alerts       Dispatcher
	Events       EventSink
	Canonical    CanonicalSink
	Tracks       TrackSink
	Visits       VisitRecorder
	Viewers      Notifier
	StoreTimeout time.Duration
	Logger       *logger.Logger
}

// CameraAnalysisState is the per-camera state carried between cycles.
type CameraAnalysisState struct {
	CameraID   string
	Zones      *zones.Detector
	Votes      *temporal.Filter
	Dedup      *dedup.Gate
	Tracks     *tracks.Builder
	LastMotion time.Time
	Started    time.Time
	version    uint64
}

// Analyzer runs the analysis cycle for one camera. Cycles are sequential;
// an Analyzer is not safe for concurrent use.
type Analyzer struct {
	deps  Deps
	state CameraAnalysisState
}

// NewAnalyzer creates the analyzer for cameraID.
func NewAnalyzer(cameraID string, deps Deps) *Analyzer {
	cfg := deps.Config.Current()
	return &Analyzer{
		deps: deps,
		state: CameraAnalysisState{
			CameraID: cameraID,
			Zones:    zones.NewDetector(),
			Votes:    temporal.NewFilter(),
			Dedup:    dedup.NewGate(cfg.DedupCooldown()),
			Tracks:   tracks.NewBuilder(cameraID, trackGap(cfg)),
			version:  cfg.Version,
		},
	}
}

func trackGap(cfg *config.Analytics) time.Duration {
	return time.Duration(cfg.Predictor.TrackGapSeconds * float64(time.Second))
}

// State exposes the per-camera state.
func (a *Analyzer) State() *CameraAnalysisState {
	return &a.state
}

// LastMotion returns the capture time of the last frame with motion, or
// the first frame's time when none had motion yet.
func (a *Analyzer) LastMotion() time.Time {
	if a.state.LastMotion.IsZero() {
		return a.state.Started
	}
	return a.state.LastMotion
}

func (a *Analyzer) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.deps.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.deps.StoreTimeout)
}

// Process runs one analysis cycle. It always returns the cycle's canonical
// record; the error joins the non-fatal problems met along the way.
func (a *Analyzer) Process(ctx context.Context, frame *models.DetectionFrame) (models.CanonicalEvent, error) {
	cfg := a.deps.Config.Current()
	if cfg.Version != a.state.version {
		a.state.Dedup.SetCooldown(cfg.DedupCooldown())
		a.state.Tracks.SetGap(trackGap(cfg))
		a.state.version = cfg.Version
	}

	var errs []error
	if frame.CameraID == "" {
		frame.CameraID = a.state.CameraID
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	ts := frame.Timestamp
	if a.state.Started.IsZero() {
		a.state.Started = ts
	}

	objects := make([]models.Object, 0, len(frame.Objects))
	for _, obj := range frame.Objects {
		if obj.Validate() == nil {
			objects = append(objects, obj)
		}
	}
	persons, bad := frame.Persons(cfg.PersonConfidence)
	errs = append(errs, bad...)

	motion := false
	if a.deps.Motion != nil && len(frame.Image) > 0 {
		var err error
		if motion, err = a.deps.Motion.DetectMotion(frame.Image, a.state.CameraID); err != nil {
			errs = append(errs, fmt.Errorf("%w: motion: %v", models.ErrInputMalformed, err))
			motion = false
		}
	}
	if motion {
		a.state.LastMotion = ts
	}

	centroids := make([]geometry.Point, len(persons))
	for i, p := range persons {
		centroids[i] = p.Centroid()
	}
	zoneResult := a.state.Zones.Evaluate(cfg, centroids, 1, 1)
	raw := zones.Candidate(zoneResult, motion)

	pose := fusion.DisabledPose()
	if cfg.Modalities.Pose {
		w, h := float64(frame.Width), float64(frame.Height)
		if w <= 0 || h <= 0 {
			w, h = 1, 1
		}
		pose = fusion.AnalyzePose(persons, frame.Pose, w, h)
	}
	kind := a.state.Votes.Push(raw, pose.PersonDown)

	ev := fusion.Fuse(fusion.Input{
		Frame:   frame,
		Objects: objects,
		Persons: persons,
		Kind:    kind,
		Motion:  motion,
		Zones:   zoneResult.ZonesWithPerson,
		Pose:    pose,
	}, fusion.Options{SiteID: a.deps.SiteID, Modalities: cfg.Modalities})

	if len(persons) > 0 {
		if err := a.identify(ctx, frame, &ev); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, a.track(ctx, &ev, frame.Scene)...)
	}
	errs = append(errs, a.finalize(ctx, a.state.Tracks.Sweep(ts))...)

	if kind != models.KindNone && a.state.Dedup.Allow(kind, a.state.CameraID, ts) {
		errs = append(errs, a.emit(ctx, ev, kind)...)
	}
	if cfg.CrowdThreshold > 0 && len(persons) >= cfg.CrowdThreshold &&
		a.state.Dedup.Allow(models.KindCrowding, a.state.CameraID, ts) {
		errs = append(errs, a.emit(ctx, ev, models.KindCrowding)...)
	}

	if a.deps.Canonical != nil {
		a.deps.Canonical.Add(ctx, ev)
	}
	return ev, errors.Join(errs...)
}

func (a *Analyzer) identify(ctx context.Context, frame *models.DetectionFrame, ev *models.CanonicalEvent) error {
	if a.deps.Identity == nil || len(frame.Embedding) == 0 {
		return nil
	}
	rctx, cancel := a.bounded(ctx)
	defer cancel()

	appearance := models.Appearance{Clothing: frame.Clothing, HeightCM: ev.Video.HeightCM}
	id, err := a.deps.Identity.Resolve(rctx, a.state.CameraID, frame.Embedding, frame.Timestamp, appearance)
	if err != nil {
		return fmt.Errorf("re-id: %w", err)
	}
	ev.PersonID = id.PersonID
	return nil
}

func (a *Analyzer) track(ctx context.Context, ev *models.CanonicalEvent, scene string) []error {
	tr, closed := a.state.Tracks.Observe(tracks.Observation{
		PersonID:     ev.PersonID,
		Timestamp:    ev.Timestamp,
		ThreatScore:  ev.ThreatScore,
		AnomalyScore: ev.AnomalyScore,
		Scene:        scene,
		Kind:         ev.Kind,
	})
	errs := a.finalize(ctx, closed)

	if a.deps.Predictor == nil {
		return errs
	}
	pred := a.deps.Predictor.Predict(threat.InputFromTrack(tr))
	ev.ThreatScore = max(ev.ThreatScore, pred.ThreatScore)
	ev.Intent = pred.Intent
	if pred.Flags != nil {
		ev.Flags = append([]string{}, pred.Flags...)
	}
	a.state.Tracks.Annotate(ev.PersonID, pred.ThreatScore, pred.Intent, pred.Flags)
	return errs
}

func (a *Analyzer) finalize(ctx context.Context, closed []models.Track) []error {
	var errs []error
	for i := range closed {
		t := &closed[i]
		a.deps.Logger.Info("🧾 Track %s on camera %s closed: %d detections, %.0fs", t.ID, t.CameraID, t.DetectionCount, t.DwellSeconds)

		if a.deps.Tracks != nil {
			sctx, cancel := a.bounded(ctx)
			if err := a.deps.Tracks.InsertTrack(sctx, t); err != nil {
				errs = append(errs, fmt.Errorf("%w: track %s: %v", models.ErrCollaboratorUnavailable, t.ID, err))
			}
			cancel()
		}
		if a.deps.Visits != nil && t.Known() {
			sctx, cancel := a.bounded(ctx)
			if err := a.deps.Visits.RecordVisit(sctx, t.PersonID, t.DwellSeconds); err != nil {
				errs = append(errs, fmt.Errorf("%w: visit %s: %v", models.ErrCollaboratorUnavailable, t.PersonID, err))
			}
			cancel()
		}
	}
	return errs
}

// metadata is the JSON summary stored with a notification and sent with
// alerts.
func metadata(ev models.CanonicalEvent) map[string]any {
	return map[string]any{
		"object_summary":    ev.ObjectSummary,
		"crowd_count":       ev.CrowdCount,
		"zones_with_person": ev.ZonesWithPerson,
		"person_id":         ev.PersonID,
		"threat_score":      ev.ThreatScore,
		"anomaly_score":     ev.AnomalyScore,
		"predicted_intent":  ev.Intent,
		"flags":             ev.Flags,
	}
}

func (a *Analyzer) emit(ctx context.Context, ev models.CanonicalEvent, kind models.EventKind) []error {
	var errs []error
	meta := metadata(ev)
	data, err := json.Marshal(meta)
	if err != nil {
		return []error{fmt.Errorf("failed to marshal event metadata: %w", err)}
	}

	severity := models.SeverityLow
	if a.deps.Alerts != nil {
		severity = a.deps.Alerts.Severity(ev.ThreatScore)
	}
	n := &models.EventNotification{
		Kind:      kind,
		CameraID:  ev.CameraID,
		SiteID:    ev.SiteID,
		Timestamp: ev.Timestamp,
		Metadata:  string(data),
		Severity:  severity,
	}
	n.Seal()

	if a.deps.Events != nil {
		sctx, cancel := a.bounded(ctx)
		id, err := a.deps.Events.InsertEvent(sctx, n)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: event: %v", models.ErrCollaboratorUnavailable, err))
		} else {
			n.ID = id
		}
	}
	a.deps.Logger.Info("📣 %s on camera %s (threat %d)", kind.Label(), ev.CameraID, ev.ThreatScore)

	if a.deps.Viewers != nil {
		if err := a.deps.Viewers.Notify("new_event", n); err != nil {
			errs = append(errs, err)
		}
	}

	if a.deps.Alerts != nil {
		if _, err := a.deps.Alerts.Dispatch(ctx, alerts.Trigger{
			ThreatScore: ev.ThreatScore,
			CameraID:    ev.CameraID,
			Kind:        kind,
			Timestamp:   ev.Timestamp,
			Metadata:    meta,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Close finalizes every open track, as when the stream ends.
func (a *Analyzer) Close(ctx context.Context) error {
	errs := a.finalize(ctx, a.state.Tracks.Flush())
	if f, ok := a.deps.Motion.(interface{ Forget(string) }); ok {
		f.Forget(a.state.CameraID)
	}
	return errors.Join(errs...)
}
