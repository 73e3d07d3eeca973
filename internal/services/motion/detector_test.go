package motion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/Bwilkie91/camera/internal/logger"
)

func encodeFrame(t *testing.T, square image.Rectangle) []byte {
	t.Helper()
	mat := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer mat.Close()
	if !square.Empty() {
		gocv.Rectangle(&mat, square, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestDetectMotion(t *testing.T) {
	d := NewDetectorService(0, logger.Discard())
	blank := encodeFrame(t, image.Rectangle{})
	moved := encodeFrame(t, image.Rect(100, 60, 200, 160))

	first, err := d.DetectMotion(blank, "cam1")
	require.NoError(t, err)
	assert.False(t, first, "first frame never reports motion")

	still, err := d.DetectMotion(blank, "cam1")
	require.NoError(t, err)
	assert.False(t, still)

	changed, err := d.DetectMotion(moved, "cam1")
	require.NoError(t, err)
	assert.True(t, changed)

	// Cameras keep separate previous frames
	other, err := d.DetectMotion(moved, "cam2")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestDetectMotion_BadImage(t *testing.T) {
	d := NewDetectorService(0, logger.Discard())
	_, err := d.DetectMotion([]byte("not an image"), "cam1")
	assert.Error(t, err)
}
