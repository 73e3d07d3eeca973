package motion

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Bwilkie91/camera/internal/logger"
)

const (
	DefaultThreshold = 500 // Changed pixels needed to report motion
	pixelDelta       = 25  // Per-pixel gray level change counted as movement
)

var blurKernel = image.Pt(21, 21)

// CameraState keeps the previous blurred gray frame for one camera.
type CameraState struct {
	previousMat gocv.Mat
	hasPrevious bool
	mutex       sync.Mutex
}

// DetectorService detects motion by differencing consecutive frames.
type DetectorService struct {
	cameraStates map[string]*CameraState
	statesMutex  sync.RWMutex
	threshold    int
	logger       *logger.Logger
}

// NewDetectorService creates a motion detector. A non-positive threshold
// selects DefaultThreshold.
func NewDetectorService(threshold int, logger *logger.Logger) *DetectorService {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &DetectorService{
		cameraStates: make(map[string]*CameraState),
		threshold:    threshold,
		logger:       logger,
	}
}

func (s *DetectorService) getCameraState(cameraID string) *CameraState {
	s.statesMutex.RLock()
	state, exists := s.cameraStates[cameraID]
	s.statesMutex.RUnlock()

	if exists {
		return state
	}

	s.statesMutex.Lock()
	defer s.statesMutex.Unlock()

	// Double-check, another worker may have created it
	if state, exists := s.cameraStates[cameraID]; exists {
		return state
	}

	state = &CameraState{}
	s.cameraStates[cameraID] = state
	s.logger.Info("Created motion detection state for camera: %s", cameraID)

	return state
}

// DetectMotion compares the frame against the camera's previous frame.
// The first frame of a camera never reports motion.
func (s *DetectorService) DetectMotion(imageBytes []byte, cameraID string) (bool, error) {
	state := s.getCameraState(cameraID)
	state.mutex.Lock()
	defer state.mutex.Unlock()

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return false, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return false, fmt.Errorf("decoded image is empty")
	}

	gray := gocv.NewMat()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		gray.Close()
		return false, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}
	gocv.GaussianBlur(gray, &gray, blurKernel, 0, 0, gocv.BorderDefault)

	if !state.hasPrevious || state.previousMat.Rows() != gray.Rows() || state.previousMat.Cols() != gray.Cols() {
		s.replacePrevious(state, gray)
		s.logger.Info("Initialized motion detection for camera: %s", cameraID)
		return false, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	if err := gocv.AbsDiff(state.previousMat, gray, &diff); err != nil {
		gray.Close()
		return false, fmt.Errorf("failed to compute absolute difference: %w", err)
	}

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, pixelDelta, 255, gocv.ThresholdBinary)

	nonZeroPixels := gocv.CountNonZero(thresh)
	s.replacePrevious(state, gray)

	return nonZeroPixels > s.threshold, nil
}

// replacePrevious takes ownership of gray.
func (s *DetectorService) replacePrevious(state *CameraState, gray gocv.Mat) {
	if state.hasPrevious {
		state.previousMat.Close()
	}
	state.previousMat = gray
	state.hasPrevious = true
}

// Forget drops the stored frame for a camera.
func (s *DetectorService) Forget(cameraID string) {
	s.statesMutex.Lock()
	state, exists := s.cameraStates[cameraID]
	delete(s.cameraStates, cameraID)
	s.statesMutex.Unlock()

	if !exists {
		return
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()
	if state.hasPrevious {
		state.previousMat.Close()
		state.hasPrevious = false
	}
}
