package fusion

import (
	"math"
	"strings"

	"github.com/Bwilkie91/camera/internal/models"
)

// Landmark indices of the pose convention: shoulders 11/12, hips 23/24.
const (
	leftShoulder  = 11
	rightShoulder = 12
	leftHip       = 23
	rightHip      = 24
	fullPose      = 25
)

const (
	lyingAspect         = 1.15 // box width/height at which a person reads as lying
	horizontalTorsoDeg  = 45
	bentTorsoDeg        = 25
	asymmetryTolerance  = 0.06
	minLandmarkVisibility = 0.5
)

// DisabledPose is reported when the pose modality is switched off.
func DisabledPose() models.PoseAttributes {
	return models.PoseAttributes{Posture: models.None, GaitNotes: models.None, Reason: models.None}
}

// AnalyzePose derives posture and the person-down signal for one cycle.
// width and height are the pixel frame size, or 1 x 1 when unknown.
func AnalyzePose(persons []models.Object, landmarks []models.Landmark, width, height float64) models.PoseAttributes {
	out := models.PoseAttributes{Posture: "Unknown", GaitNotes: GaitNotes(landmarks), Reason: models.None}
	if len(landmarks) == 0 {
		return out
	}
	out.Posture = "Standing"

	if len(persons) != 1 {
		return out
	}
	box := persons[0]
	h := box.Height() * height
	if h <= 0 {
		return out
	}

	bboxHorizontal := box.Width()*width/h >= lyingAspect
	torsoHorizontal := false
	if len(landmarks) >= fullPose {
		angle := math.Abs(torsoAngle(landmarks))
		torsoHorizontal = angle < horizontalTorsoDeg || angle > 180-horizontalTorsoDeg
	}

	switch {
	case torsoHorizontal:
		out.PersonDown, out.Reason = true, "torso_horizontal"
	case bboxHorizontal:
		out.PersonDown, out.Reason = true, "bbox_horizontal"
	}
	if out.PersonDown {
		out.Posture = "Person down"
	}
	return out
}

// GaitNotes describes torso bend and left/right symmetry from one pose.
func GaitNotes(lm []models.Landmark) string {
	if len(lm) < fullPose || lm[leftShoulder].Visibility < minLandmarkVisibility {
		return "unknown"
	}

	fromVertical := math.Abs(math.Abs(torsoAngle(lm)) - 90)
	bent := fromVertical > bentTorsoDeg
	asymmetric := math.Abs(lm[leftShoulder].Y-lm[rightShoulder].Y) > asymmetryTolerance ||
		math.Abs(lm[leftHip].Y-lm[rightHip].Y) > asymmetryTolerance

	var notes []string
	if bent {
		notes = append(notes, "bent_torso")
	}
	if asymmetric {
		notes = append(notes, "asymmetric")
	}
	if len(notes) == 0 {
		return "normal"
	}
	return strings.Join(notes, ", ")
}

// torsoAngle returns the shoulder-midpoint to hip-midpoint angle in degrees.
// An upright torso is close to 90.
func torsoAngle(lm []models.Landmark) float64 {
	scx := (lm[leftShoulder].X + lm[rightShoulder].X) / 2
	scy := (lm[leftShoulder].Y + lm[rightShoulder].Y) / 2
	hcx := (lm[leftHip].X + lm[rightHip].X) / 2
	hcy := (lm[leftHip].Y + lm[rightHip].Y) / 2
	return math.Atan2(hcy-scy, hcx-scx) * 180 / math.Pi
}
