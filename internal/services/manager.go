package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
	"github.com/Bwilkie91/camera/internal/services/intake"
)

// closeTimeout bounds the final track flush of a stopping camera.
const closeTimeout = 10 * time.Second

// FrameProcessor runs the analysis cycle of one camera.
type FrameProcessor interface {
	Process(ctx context.Context, frame *models.DetectionFrame) (models.CanonicalEvent, error)
	Close(ctx context.Context) error
	LastMotion() time.Time
}

// ProcessorFactory creates the processor for a newly seen camera.
type ProcessorFactory func(cameraID string) FrameProcessor

type cameraWorker struct {
	id        string
	mailbox   *intake.Mailbox
	processor FrameProcessor
	cycles    atomic.Uint64
	failures  atomic.Uint64
	lastSeen  time.Time // worker goroutine only
}

// CameraStats describes one camera worker.
type CameraStats struct {
	CameraID  string `json:"camera_id"`
	Cycles    uint64 `json:"cycles"`
	Failures  uint64 `json:"failed_cycles"`
	Published uint64 `json:"frames_received"`
	Drops     uint64 `json:"frames_dropped"`
}

// Manager runs one sequential analysis loop per camera. Frames are handed
// over through a single-slot mailbox; each loop analyses the freshest frame
// and then sleeps for the configured cycle interval.
type Manager struct {
	analytics    *config.AnalyticsStore
	newProcessor ProcessorFactory
	logger       *logger.Logger

	cameras   map[string]*cameraWorker
	camerasMu sync.RWMutex
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	after func(time.Duration) <-chan time.Time
}

func NewManager(analytics *config.AnalyticsStore, factory ProcessorFactory, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		analytics:    analytics,
		newProcessor: factory,
		logger:       logger,
		cameras:      make(map[string]*cameraWorker),
		ctx:          ctx,
		cancel:       cancel,
		after:        time.After,
	}

	manager.logger.Info("🎬 Manager started - cycle interval %s", analytics.Current().CycleInterval())
	return manager
}

// HandleFrame queues a frame for its camera, starting the camera's worker
// on first sight. It never waits for analysis.
func (m *Manager) HandleFrame(frame *models.DetectionFrame) error {
	if frame == nil || frame.CameraID == "" {
		return fmt.Errorf("%w: frame without camera id", models.ErrInputMalformed)
	}

	w, err := m.getCamera(frame.CameraID)
	if err != nil {
		return err
	}
	w.mailbox.Publish(frame)
	return nil
}

func (m *Manager) getCamera(cameraID string) (*cameraWorker, error) {
	m.camerasMu.RLock()
	w, exists := m.cameras[cameraID]
	stopped := m.stopped
	m.camerasMu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("manager stopped")
	}
	if exists {
		return w, nil
	}

	m.camerasMu.Lock()
	defer m.camerasMu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("manager stopped")
	}
	if w, exists = m.cameras[cameraID]; exists {
		return w, nil
	}

	w = &cameraWorker{
		id:        cameraID,
		mailbox:   intake.NewMailbox(),
		processor: m.newProcessor(cameraID),
	}
	m.cameras[cameraID] = w

	m.wg.Add(1)
	go m.cameraLoop(w)
	return w, nil
}

func (m *Manager) cameraLoop(w *cameraWorker) {
	defer m.wg.Done()
	m.logger.Info("🔧 Camera %s worker started", w.id)

	for {
		if frame, ok := w.mailbox.Take(); ok {
			m.cycle(w, frame)
		}

		select {
		case <-m.ctx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			if err := w.processor.Close(ctx); err != nil {
				m.logger.Error("Camera %s: closing tracks: %v", w.id, err)
			}
			cancel()
			m.logger.Info("🔧 Camera %s worker stopped", w.id)
			return
		case <-m.after(m.sleepFor(w)):
		}
	}
}

// cycle runs to completion even when the manager is stopping.
func (m *Manager) cycle(w *cameraWorker, frame *models.DetectionFrame) {
	ctx := context.WithoutCancel(m.ctx)
	w.lastSeen = frame.Timestamp

	_, err := w.processor.Process(ctx, frame)
	w.cycles.Add(1)
	if err != nil {
		w.failures.Add(1)
		m.logger.Warning("⚠️  Camera %s cycle: %v", w.id, err)
	}
}

// sleepFor returns the cycle interval, stretched by the idle multiplier when
// the camera has seen no motion for longer than the idle threshold.
func (m *Manager) sleepFor(w *cameraWorker) time.Duration {
	cfg := m.analytics.Current()
	interval := cfg.CycleInterval()

	idleAfter := cfg.IdleAfter()
	last := w.processor.LastMotion()
	if idleAfter > 0 && !last.IsZero() && !w.lastSeen.IsZero() && w.lastSeen.Sub(last) > idleAfter {
		interval = time.Duration(float64(interval) * cfg.IdleMultiplier())
	}
	return interval
}

// Cameras returns per-camera statistics sorted by camera id.
func (m *Manager) Cameras() []CameraStats {
	m.camerasMu.RLock()
	defer m.camerasMu.RUnlock()

	stats := make([]CameraStats, 0, len(m.cameras))
	for _, w := range m.cameras {
		published, drops := w.mailbox.Stats()
		stats = append(stats, CameraStats{
			CameraID:  w.id,
			Cycles:    w.cycles.Load(),
			Failures:  w.failures.Load(),
			Published: published,
			Drops:     drops,
		})
	}
	slices.SortFunc(stats, func(a, b CameraStats) int {
		if a.CameraID < b.CameraID {
			return -1
		}
		if a.CameraID > b.CameraID {
			return 1
		}
		return 0
	})
	return stats
}

// Stop ends every camera loop, letting in-flight cycles complete and
// finalizing open tracks.
func (m *Manager) Stop() {
	m.camerasMu.Lock()
	m.stopped = true
	m.camerasMu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("🛑 All camera workers stopped")
}
