package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bwilkie91/camera/internal/config"
	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

var noon = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeProcessor struct {
	mu         sync.Mutex
	seen       []time.Time
	closed     bool
	lastMotion time.Time
	err        error
}

func (p *fakeProcessor) Process(_ context.Context, f *models.DetectionFrame) (models.CanonicalEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, f.Timestamp)
	return models.CanonicalEvent{CameraID: f.CameraID, Timestamp: f.Timestamp}, p.err
}

func (p *fakeProcessor) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProcessor) LastMotion() time.Time { return p.lastMotion }

func (p *fakeProcessor) frames() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.seen...)
}

func (p *fakeProcessor) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// testClock hands every loop sleep to the test, which wakes it explicitly.
type testClock struct {
	sleeps chan chan time.Time
}

func (c *testClock) after(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.sleeps <- ch
	return ch
}

// idle waits until the camera loop sleeps and returns its wake channel.
func (c *testClock) idle(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.sleeps:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("camera loop never went to sleep")
		return nil
	}
}

// runUntil wakes the loop until p has processed n frames, and returns the
// wake channel of the sleep the loop is blocked on afterwards.
func (c *testClock) runUntil(t *testing.T, p *fakeProcessor, n int) chan time.Time {
	t.Helper()
	for len(p.frames()) < n {
		c.idle(t) <- time.Now()
	}
	return c.idle(t)
}

func newTestManager(t *testing.T, procErr error) (*Manager, map[string]*fakeProcessor, *testClock) {
	t.Helper()
	store, err := config.NewAnalyticsStore(config.DefaultAnalytics())
	require.NoError(t, err)

	procs := make(map[string]*fakeProcessor)
	m := NewManager(store, func(id string) FrameProcessor {
		p := &fakeProcessor{err: procErr}
		procs[id] = p
		return p
	}, logger.Discard())

	clock := &testClock{sleeps: make(chan chan time.Time, 16)}
	m.after = clock.after
	return m, procs, clock
}

func frameAt(camera string, sec int) *models.DetectionFrame {
	return &models.DetectionFrame{CameraID: camera, Timestamp: noon.Add(time.Duration(sec) * time.Second)}
}

func TestManager_ProcessesFreshestFrame(t *testing.T) {
	m, procs, clock := newTestManager(t, nil)
	defer m.Stop()

	require.NoError(t, m.HandleFrame(frameAt("cam1", 0)))
	p := procs["cam1"]
	wake := clock.runUntil(t, p, 1)

	require.NoError(t, m.HandleFrame(frameAt("cam1", 1)))
	require.NoError(t, m.HandleFrame(frameAt("cam1", 2)))
	wake <- time.Now()
	clock.runUntil(t, p, 2)

	assert.Equal(t, []time.Time{noon, noon.Add(2 * time.Second)}, p.frames())

	stats := m.Cameras()
	require.Len(t, stats, 1)
	assert.Equal(t, "cam1", stats[0].CameraID)
	assert.Equal(t, uint64(3), stats[0].Published)
	assert.Equal(t, uint64(1), stats[0].Drops)
	assert.Equal(t, uint64(2), stats[0].Cycles)
}

func TestManager_CamerasAreIndependent(t *testing.T) {
	m, procs, _ := newTestManager(t, nil)
	m.after = func(time.Duration) <-chan time.Time { return time.After(time.Millisecond) }
	defer m.Stop()

	require.NoError(t, m.HandleFrame(frameAt("cam2", 0)))
	require.NoError(t, m.HandleFrame(frameAt("cam1", 0)))
	p1, p2 := procs["cam1"], procs["cam2"]

	require.Eventually(t, func() bool {
		return len(p1.frames()) == 1 && len(p2.frames()) == 1
	}, 2*time.Second, time.Millisecond)

	stats := m.Cameras()
	require.Len(t, stats, 2)
	assert.Equal(t, "cam1", stats[0].CameraID)
	assert.Equal(t, "cam2", stats[1].CameraID)
}

func TestManager_CycleErrorsDoNotStopTheLoop(t *testing.T) {
	m, procs, clock := newTestManager(t, errors.New("store down"))
	defer m.Stop()

	require.NoError(t, m.HandleFrame(frameAt("cam1", 0)))
	p := procs["cam1"]
	wake := clock.runUntil(t, p, 1)

	require.NoError(t, m.HandleFrame(frameAt("cam1", 10)))
	wake <- time.Now()
	clock.runUntil(t, p, 2)
	assert.Equal(t, uint64(2), m.Cameras()[0].Failures)
}

func TestManager_StopClosesProcessors(t *testing.T) {
	m, procs, clock := newTestManager(t, nil)

	require.NoError(t, m.HandleFrame(frameAt("cam1", 0)))
	p := procs["cam1"]
	clock.runUntil(t, p, 1)

	m.Stop()
	assert.True(t, p.isClosed())
	assert.Error(t, m.HandleFrame(frameAt("cam1", 5)), "known camera rejects frames after stop")
	assert.Error(t, m.HandleFrame(frameAt("cam9", 5)), "new camera rejects frames after stop")

	stats := m.Cameras()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Published, "rejected frame never reaches the mailbox")
}

func TestManager_RejectsFrameWithoutCamera(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	defer m.Stop()

	assert.ErrorIs(t, m.HandleFrame(&models.DetectionFrame{}), models.ErrInputMalformed)
	assert.ErrorIs(t, m.HandleFrame(nil), models.ErrInputMalformed)
	assert.Empty(t, m.Cameras())
}

func TestManager_SleepForIdleSkip(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	defer m.Stop()

	p := &fakeProcessor{lastMotion: noon}
	w := &cameraWorker{id: "cam1", processor: p}

	w.lastSeen = noon.Add(60 * time.Second)
	assert.Equal(t, 10*time.Second, m.sleepFor(w))

	w.lastSeen = noon.Add(121 * time.Second)
	assert.Equal(t, 20*time.Second, m.sleepFor(w))

	p.lastMotion = time.Time{}
	assert.Equal(t, 10*time.Second, m.sleepFor(w))
}
