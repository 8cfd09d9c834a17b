//go:build unix

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/rawmode"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rawtty.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	opts := cfg.SessionOptions()
	assert.Equal(t, 100*time.Millisecond, opts.CallbackDelay)
	assert.Equal(t, 10*time.Second, opts.AutoDetectTimeout)
	assert.Equal(t, 512, opts.FlushThreshold)
	assert.Equal(t, rawmode.CapabilityNone, opts.Capabilities)
	assert.Equal(t, rawmode.ControllingTerminal, opts.TTYPath)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[session]
allow_interrupt = true
allow_suspend = true
callback_delay_ms = 250
flush_threshold = 1024

[engine]
mouse = "drag"
alt_screen = false

[log]
file = "/tmp/rawtty.log"
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	opts := cfg.SessionOptions()
	assert.Equal(t, rawmode.AllowInterrupt|rawmode.AllowSuspend, opts.Capabilities)
	assert.Equal(t, 250*time.Millisecond, opts.CallbackDelay)
	assert.Equal(t, 1024, opts.FlushThreshold)
	// Untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, opts.AutoDetectTimeout)

	eng := cfg.EngineOptions()
	assert.False(t, eng.AltScreen)
	assert.True(t, eng.HideCursor)
	assert.Equal(t, protocol.MouseModeClick|protocol.MouseModeDrag, eng.Mouse)

	logCfg := cfg.LoggingConfig()
	assert.Equal(t, "/tmp/rawtty.log", logCfg.File)
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, int64(10<<20), logCfg.MaxSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[session]
callback_delay_ms = 250

[engine]
type = "ansi"
`)
	t.Setenv("RAWTTY_SESSION_CALLBACK_DELAY_MS", "40")
	t.Setenv("RAWTTY_ENGINE_TYPE", "tcell")
	t.Setenv("RAWTTY_METRICS_ADDR", "127.0.0.1:9100")
	t.Setenv("RAWTTY_SESSION_DISABLE_AUTO_RESIZE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Session.CallbackDelayMs)
	assert.Equal(t, EngineTcell, cfg.Engine.Type)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.True(t, cfg.SessionOptions().DisableAutoResize)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[session]\nbogus = 1\n"},
		{"bad engine", "[engine]\ntype = \"curses\"\n"},
		{"bad mouse", "[engine]\nmouse = \"wheel\"\n"},
		{"negative delay", "[session]\ncallback_delay_ms = -1\n"},
		{"syntax", "[session\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("RAWTTY_SESSION_FLUSH_THRESHOLD", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Session.AllowQuit = true
	cfg.Metrics.Addr = ":9100"

	data, err := cfg.Encode()
	require.NoError(t, err)

	loaded, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
