package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diskinspector/internal/config"
)

func TestLogFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Log("WARN", "refused", "device", "/dev/sda", "reason", "system disk")
	out := buf.String()
	assert.Contains(t, out, "level=warning")
	assert.Contains(t, out, `msg=refused`)
	assert.Contains(t, out, "device=/dev/sda")
	assert.Contains(t, out, `reason="system disk"`)
}

func TestLogOddFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Log("INFO", "dangling", "key")
	assert.Contains(t, buf.String(), `key="(missing)"`)
}

func TestNewLoggerWritesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "diskinspector.log")
	cfg.Logging.Level = "WARN"

	l, err := NewLogger(cfg, false)
	require.NoError(t, err)
	l.Log("INFO", "below threshold")
	l.Log("ERROR", "dd failed", "status", 1)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below threshold")
	assert.Contains(t, string(data), "dd failed")
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "LOUD"
	_, err := NewLogger(cfg, false)
	assert.Error(t, err)
}
