package intake

import (
	"sync"

	"github.com/Bwilkie91/camera/internal/models"
)

// Mailbox is a single-slot frame buffer. Publishing over an unconsumed frame
// replaces it, so the reader always gets the freshest frame.
type Mailbox struct {
	mu        sync.Mutex
	frame     *models.DetectionFrame
	published uint64
	drops     uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish stores frame, overwriting any unconsumed one. Never blocks on
// the reader.
func (m *Mailbox) Publish(frame *models.DetectionFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frame != nil {
		m.drops++
	}
	m.frame = frame
	m.published++
}

// Take removes and returns the pending frame, if any.
func (m *Mailbox) Take() (*models.DetectionFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f, f != nil
}

// Stats returns the number of frames published and overwritten unread.
func (m *Mailbox) Stats() (published, drops uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.drops
}
