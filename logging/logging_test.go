package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DisabledWithoutFile(t *testing.T) {
	logger, closeFn, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.ErrorLevel), "disabled logging must be a no-op")
	assert.NoError(t, closeFn())
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rawtty.log")

	logger, closeFn, err := New(Config{File: path, Level: "debug"})
	require.NoError(t, err)
	logger.Info("session set up", zap.String("session", "abc"), zap.Int("fd", 3))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "session set up", entry["msg"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawtty.log")

	logger, closeFn, err := New(Config{File: path, Level: "warn"})
	require.NoError(t, err)
	logger.Info("hidden")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Config{File: filepath.Join(t.TempDir(), "x.log"), Level: "loud"})
	assert.Error(t, err)
}

func TestNew_RotatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawtty.log")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0644))

	logger, closeFn, err := New(Config{File: path, MaxSize: 1024})
	require.NoError(t, err)
	logger.Info("fresh")
	require.NoError(t, closeFn())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	rotatedFound := false
	for _, entry := range entries {
		if entry.Name() != "rawtty.log" && filepath.Ext(entry.Name()) == ".log" {
			rotatedFound = true
		}
	}
	assert.True(t, rotatedFound, "expected rotated log file")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024))
}

func TestRotate_SmallFileKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawtty.log")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))

	require.NoError(t, rotate(path, 1024, time.Now()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRotate_Name(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "debug")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0644))

	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, rotate(path, 1, now))
	_, err := os.Stat(filepath.Join(dir, "debug-20260304-050607.log"))
	assert.NoError(t, err)
}
