package zones

import (
	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/geometry"
	"github.com/Bwilkie91/camera/internal/models"
)

// Result is what one cycle of zone/line analysis reports.
type Result struct {
	Loiter          bool
	LineCross       bool
	ZonesWithPerson []int
}

// Detector keeps the per-camera dwell counters and the previous cycle's
// centroids. It is owned by a single camera worker.
type Detector struct {
	dwell    map[int]int
	previous []geometry.Point
	version  uint64
}

// NewDetector creates a detector with empty dwell state.
func NewDetector() *Detector {
	return &Detector{dwell: make(map[int]int)}
}

// Evaluate runs zone dwell and line crossing checks for one cycle.
// Centroids are expressed in a width x height space; zones and lines are
// scaled into it. Pass 1 x 1 for normalized centroids.
func (d *Detector) Evaluate(cfg *config.Analytics, centroids []geometry.Point, width, height float64) Result {
	if cfg.Version != d.version {
		// Zone indices may refer to different polygons after a config change
		d.Reset()
		d.version = cfg.Version
	}

	var res Result
	for i, zone := range cfg.Zones {
		poly := geometry.ScalePolygon(zone.Polygon(), width, height)

		occupied := false
		for _, c := range centroids {
			if geometry.PointInPolygon(c, poly) {
				occupied = true
				break
			}
		}

		if !occupied {
			d.dwell[i] = 0
			continue
		}

		res.ZonesWithPerson = append(res.ZonesWithPerson, i)
		d.dwell[i]++
		if d.dwell[i] >= cfg.LoiterCycles(zone) {
			res.Loiter = true
			d.dwell[i] = 0
		}
	}

	if len(d.previous) > 0 && len(centroids) > 0 {
		res.LineCross = d.crossed(cfg.Lines, centroids, width, height)
	}

	d.previous = append(d.previous[:0], centroids...)
	return res
}

func (d *Detector) crossed(lines []models.Line, centroids []geometry.Point, width, height float64) bool {
	for _, line := range lines {
		seg := geometry.ScaleSegment(line.Segment(), width, height)
		for _, prev := range d.previous {
			for _, cur := range centroids {
				if geometry.SegmentCrossesLine(prev, cur, seg) {
					return true
				}
			}
		}
	}
	return false
}

// Dwell returns the current consecutive-cycle count for zone i.
func (d *Detector) Dwell(i int) int {
	return d.dwell[i]
}

// Reset clears dwell counters and the previous centroids.
func (d *Detector) Reset() {
	clear(d.dwell)
	d.previous = d.previous[:0]
}

// Candidate picks the raw candidate kind for a cycle:
// line crossing, then loitering, then motion.
func Candidate(res Result, motion bool) models.EventKind {
	switch {
	case res.LineCross:
		return models.KindLineCross
	case res.Loiter:
		return models.KindLoitering
	case motion:
		return models.KindMotion
	default:
		return models.KindNone
	}
}
