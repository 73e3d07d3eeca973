package temporal

import "github.com/Bwilkie91/camera/internal/models"

// WindowSize is the number of recent raw candidates that vote.
const WindowSize = 3

// Filter smooths raw candidates with a majority vote over a sliding window.
// It is owned by a single camera worker.
type Filter struct {
	window []models.EventKind
	size   int
}

// NewFilter creates a filter with the default window size.
func NewFilter() *Filter {
	return &Filter{size: WindowSize, window: make([]models.EventKind, 0, WindowSize)}
}

// Push records raw and returns the accepted kind for this cycle.
// A person-down signal always wins.
func (f *Filter) Push(raw models.EventKind, personDown bool) models.EventKind {
	if len(f.window) == f.size {
		copy(f.window, f.window[1:])
		f.window = f.window[:f.size-1]
	}
	f.window = append(f.window, raw)

	accepted := raw
	if len(f.window) >= 2 {
		accepted = f.majority()
	}
	if personDown {
		return models.KindFall
	}
	return accepted
}

// majority returns the kind holding at least two votes, or none.
func (f *Filter) majority() models.EventKind {
	counts := make(map[models.EventKind]int, len(f.window))
	for _, k := range f.window {
		counts[k]++
		if counts[k] >= 2 && k != models.KindNone {
			return k
		}
	}
	return models.KindNone
}

// Window returns a copy of the current votes, oldest first.
func (f *Filter) Window() []models.EventKind {
	return append([]models.EventKind(nil), f.window...)
}

// Reset clears the window.
func (f *Filter) Reset() {
	f.window = f.window[:0]
}
