package storage

import (
	"context"
	"sync"
	"time"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

// CanonicalWriter persists a batch of canonical events in order.
type CanonicalWriter interface {
	InsertBatch(ctx context.Context, events []models.CanonicalEvent) error
}

// BufferService batches canonical events and writes them on an interval or
// when the buffer fills. Events are appended in arrival order.
type BufferService struct {
	repo        CanonicalWriter
	events      []models.CanonicalEvent
	bufferLimit int
	timeout     time.Duration
	mu          sync.Mutex
	flushMu     sync.Mutex
	written     uint64
	failed      uint64
	logger      *logger.Logger
}

func NewBufferService(repo CanonicalWriter, bufferLimit int, timeout time.Duration, logger *logger.Logger) *BufferService {
	if bufferLimit <= 0 {
		bufferLimit = 1
	}
	return &BufferService{
		repo:        repo,
		bufferLimit: bufferLimit,
		timeout:     timeout,
		events:      make([]models.CanonicalEvent, 0, bufferLimit),
		logger:      logger,
	}
}

// Run flushes on every tick until ctx is done, then flushes what is left.
func (s *BufferService) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Add appends an event and flushes when the buffer is full.
func (s *BufferService) Add(ctx context.Context, event models.CanonicalEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	full := len(s.events) >= s.bufferLimit
	s.mu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the buffered events. A failed batch is logged and dropped;
// later cycles keep observing the subject.
func (s *BufferService) Flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.events) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.events
	s.events = make([]models.CanonicalEvent, 0, s.bufferLimit)
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		s.logger.Error("Failed to flush %d canonical events: %v", len(batch), err)
		s.mu.Lock()
		s.failed += uint64(len(batch))
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.written += uint64(len(batch))
	s.mu.Unlock()
	s.logger.Info("💾 Flushed %d canonical events", len(batch))
}

// Pending returns the number of buffered events.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Stats returns the number of events written and dropped.
func (s *BufferService) Stats() (written, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.failed
}
