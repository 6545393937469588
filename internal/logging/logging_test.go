package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())
	assert.NoError(t, Config{Level: "debug", Format: "console"}.Validate())
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("trial completed", zap.Int("iteration", 3))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "trial completed", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, float64(3), line["iteration"])
	assert.Contains(t, line, "ts")
}

func TestNewWithWriterConsole(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewWithWriter(Config{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Warn("failed to record trial")
	assert.Contains(t, buf.String(), "failed to record trial")

	_, err = NewWithWriter(Config{Level: "nope", Format: "json"}, &buf)
	assert.Error(t, err)
}

func TestIsStdoutSyncError(t *testing.T) {
	assert.True(t, isStdoutSyncError(fmt.Errorf("sync: %w", syscall.EINVAL)))
	assert.True(t, isStdoutSyncError(syscall.ENOTTY))
	assert.False(t, isStdoutSyncError(syscall.EIO))
	assert.False(t, isStdoutSyncError(assert.AnError))
}
