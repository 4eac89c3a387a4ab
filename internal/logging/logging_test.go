package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "terrain.log")

	logger, err := New("info", file, false)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("session committed")
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session committed")
	assert.NotContains(t, string(data), "hidden")
}

func TestVerboseEnablesDebug(t *testing.T) {
	file := filepath.Join(t.TempDir(), "terrain.log")

	logger, err := New("warn", file, true)
	require.NoError(t, err)
	logger.Debug("tick")
	_ = logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick")
}

func TestBadLevel(t *testing.T) {
	_, err := New("chatty", "", false)
	assert.Error(t, err)
}
