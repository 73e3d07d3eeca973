package fusion

import (
	"math"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/models"
)

// Input is everything one cycle contributes to its canonical record.
type Input struct {
	Frame   *models.DetectionFrame
	Objects []models.Object // valid objects only
	Persons []models.Object
	Kind    models.EventKind
	Motion  bool
	Zones   []int
	Pose    models.PoseAttributes
}

// Options carries the site and modality switches.
type Options struct {
	SiteID     string
	Modalities config.Modalities
}

// Fuse merges one cycle's signals into a CanonicalEvent. Disabled
// modalities are filled with sentinels so every record has the same shape.
func Fuse(in Input, opts Options) models.CanonicalEvent {
	frame := in.Frame

	audio := DisabledAudio()
	if opts.Modalities.Audio {
		audio = AnalyzeAudio(frame.Audio)
	}
	pose := in.Pose
	if !opts.Modalities.Pose {
		pose = DisabledPose()
	}
	video := VideoAttributes(frame, in.Persons, in.Kind)
	if audio.Stress == "high" {
		video.Stress = "high"
	}

	ev := models.CanonicalEvent{
		Timestamp:       frame.Timestamp.UTC(),
		CameraID:        frame.CameraID,
		SiteID:          opts.SiteID,
		Kind:            in.Kind,
		Event:           in.Kind.Label(),
		ObjectSummary:   ObjectSummary(in.Objects),
		CrowdCount:      len(in.Persons),
		MotionDetected:  in.Motion,
		ZonesWithPerson: append([]int{}, in.Zones...),
		Audio:           audio,
		Video:           video,
		Pose:            pose,
		Intent:          models.IntentUnknown,
		Flags:           []string{},
	}
	if opts.Modalities.Thermal {
		ev.ThermalPresence = frame.ThermalPresence
	}
	if opts.Modalities.WiFi {
		ev.WiFiDevices = frame.WiFiDevices
	}

	ev.ThreatScore = BaseThreat(in.Kind, video, pose, audio)
	ev.AnomalyScore = math.Min(1, math.Max(EventAnomaly(in.Kind), audio.AnomalyScore))
	return ev
}

// BaseThreat is the per-cycle heuristic threat score, before prediction.
func BaseThreat(kind models.EventKind, video models.VideoAttributes, pose models.PoseAttributes, audio models.AudioAttributes) int {
	threat := 0
	if video.Suspicious != models.None {
		threat += 25
	}
	if video.Suspicious == "person_down" || pose.PersonDown {
		threat += 25
	}
	if video.Stress == "high" {
		threat += 20
	}
	if kind == models.KindLoitering {
		threat += 15
	}
	return min(100, max(threat, audio.ThreatScore))
}
