package models

import (
	"fmt"
	"time"

	"github.com/Bwilkie91/camera/internal/geometry"
)

// PersonLabel is the class label perception uses for people.
const PersonLabel = "person"

// BBox is a normalized box: x1, y1, x2, y2.
type BBox [4]float64

// Object represents a detected object in a frame.
type Object struct {
	Label      string  `json:"class_label"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox_normalized"`
}

// Centroid returns the center of the object's box.
func (o Object) Centroid() geometry.Point {
	return geometry.Point{
		X: (o.BBox[0] + o.BBox[2]) / 2,
		Y: (o.BBox[1] + o.BBox[3]) / 2,
	}
}

// Width returns the normalized box width.
func (o Object) Width() float64 { return o.BBox[2] - o.BBox[0] }

// Height returns the normalized box height.
func (o Object) Height() float64 { return o.BBox[3] - o.BBox[1] }

// Validate checks that the box and confidence are inside [0,1].
func (o Object) Validate() error {
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f out of range", ErrInputMalformed, o.Confidence)
	}
	for _, v := range o.BBox {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: bbox %v outside [0,1]", ErrInputMalformed, o.BBox)
		}
	}
	if o.BBox[2] < o.BBox[0] || o.BBox[3] < o.BBox[1] {
		return fmt.Errorf("%w: bbox %v inverted", ErrInputMalformed, o.BBox)
	}
	return nil
}

// Landmark is one normalized pose keypoint.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Audio is the transcript sample captured alongside a frame.
type Audio struct {
	Transcript  string   `json:"transcript"`
	LoudnessDB  *float64 `json:"loudness_db"`
	DurationSec *float64 `json:"duration_sec"`
}

// DetectionFrame is one perception sample for a camera.
type DetectionFrame struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp_utc"`

	// Pixel size of the source frame, zero when unknown.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Objects   []Object   `json:"objects"`
	Pose      []Landmark `json:"pose,omitempty"`
	Audio     *Audio     `json:"audio,omitempty"`
	Embedding []float32  `json:"embedding,omitempty"`

	// Encoded JPEG, used only for frame-difference motion.
	Image []byte `json:"image,omitempty"`

	Scene           string `json:"scene,omitempty"`
	Emotion         string `json:"emotion,omitempty"`
	Clothing        string `json:"clothing,omitempty"`
	ThermalPresence *bool  `json:"thermal_presence,omitempty"`
	WiFiDevices     *int   `json:"wifi_devices,omitempty"`
}

// Persons returns valid person boxes at or above minConfidence.
// Malformed boxes are skipped and reported through the returned slice of errors.
func (f *DetectionFrame) Persons(minConfidence float64) ([]Object, []error) {
	var persons []Object
	var errs []error
	for _, obj := range f.Objects {
		if err := obj.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if obj.Label == PersonLabel && obj.Confidence >= minConfidence {
			persons = append(persons, obj)
		}
	}
	return persons, errs
}
