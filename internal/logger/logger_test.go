package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bwilkie91/camera/internal/config"
)

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("camera %s started", "cam1")
	l.Warning("queue full")
	l.Error("failed: %v", os.ErrClosed)

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "camera cam1 started")
	assert.Contains(t, out, "WARNING")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "logger_test.go")
}

func TestNewLogger_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir})

	l.Warning("zone %d invalid", 3)

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "zone 3 invalid")

	require.NoError(t, l.CleanLogs("warning.log"))
	data, err = os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Empty(t, data)
}
