package dedup

import (
	"time"

	"github.com/Bwilkie91/camera/internal/models"
)

// DefaultCooldown is the minimum time between two notifications of the same
// kind for the same camera.
const DefaultCooldown = 5 * time.Second

type key struct {
	kind   models.EventKind
	camera string
}

// Gate suppresses repeats of the same (kind, camera) within a cooldown.
// It is not safe for concurrent use; callers that share a gate serialize.
type Gate struct {
	cooldown time.Duration
	last     map[key]time.Time
}

// NewGate creates a gate. A negative cooldown is treated as zero.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: max(cooldown, 0), last: make(map[key]time.Time)}
}

// Allow reports whether an event at ts passes the cooldown and, if so,
// records ts as the last accepted time for the key. Suppressed events do not
// extend the cooldown.
func (g *Gate) Allow(kind models.EventKind, cameraID string, ts time.Time) bool {
	k := key{kind: kind, camera: cameraID}
	if last, ok := g.last[k]; ok && ts.Sub(last) < g.cooldown {
		return false
	}
	g.last[k] = ts
	return true
}

// SetCooldown changes the cooldown for future checks.
func (g *Gate) SetCooldown(cooldown time.Duration) {
	g.cooldown = max(cooldown, 0)
}

// Cooldown returns the active cooldown.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}
