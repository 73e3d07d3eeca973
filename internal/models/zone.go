package models

import "github.com/Bwilkie91/camera/internal/geometry"

// Zone is a named polygon watched for loitering.
type Zone struct {
	Name   string       `yaml:"name" json:"name"`
	Points [][2]float64 `yaml:"points" json:"points"`
	// LoiterSeconds overrides the global loiter duration when positive.
	LoiterSeconds float64 `yaml:"loiter_seconds,omitempty" json:"loiter_seconds,omitempty"`
}

// Polygon returns the zone vertices as geometry points.
func (z Zone) Polygon() []geometry.Point {
	poly := make([]geometry.Point, len(z.Points))
	for i, p := range z.Points {
		poly[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return poly
}

// Line is a named tripwire segment: x1, y1, x2, y2.
type Line struct {
	Name   string     `yaml:"name" json:"name"`
	Points [4]float64 `yaml:"points" json:"points"`
}

// Segment returns the line as a geometry segment.
func (l Line) Segment() geometry.Segment {
	return geometry.Segment{
		A: geometry.Point{X: l.Points[0], Y: l.Points[1]},
		B: geometry.Point{X: l.Points[2], Y: l.Points[3]},
	}
}
