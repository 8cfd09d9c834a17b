//go:build unix

// Package config loads rawtty settings: defaults, then an optional TOML
// file, then RAWTTY_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/lixenwraith/rawtty/logging"
	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/rawmode"
	"github.com/lixenwraith/rawtty/session"
	"github.com/lixenwraith/rawtty/terminal"
	"github.com/lixenwraith/rawtty/termio"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "rawtty"

// Engine types selectable in EngineConfig.Type
const (
	EngineANSI  = "ansi"
	EngineTcell = "tcell"
)

// Config holds all application configuration
type Config struct {
	Session SessionConfig `toml:"session" envconfig:"session"`
	Engine  EngineConfig  `toml:"engine" envconfig:"engine"`
	Log     LogConfig     `toml:"log" envconfig:"log"`
	Metrics MetricsConfig `toml:"metrics" envconfig:"metrics"`
}

// SessionConfig maps onto session.Options
type SessionConfig struct {
	AllowInterrupt          bool   `toml:"allow_interrupt" envconfig:"allow_interrupt"`
	AllowQuit               bool   `toml:"allow_quit" envconfig:"allow_quit"`
	AllowSuspend            bool   `toml:"allow_suspend" envconfig:"allow_suspend"`
	ControllingTerminalOnly bool   `toml:"controlling_terminal_only" envconfig:"controlling_terminal_only"`
	DisableAutoResize       bool   `toml:"disable_auto_resize" envconfig:"disable_auto_resize"`
	DisableAutoDetectMsg    bool   `toml:"disable_autodetect_message" envconfig:"disable_autodetect_message"`
	AutoDetectMessage       string `toml:"autodetect_message" envconfig:"autodetect_message"`
	AutoDetectTimeoutMs     int    `toml:"autodetect_timeout_ms" envconfig:"autodetect_timeout_ms"`
	CallbackDelayMs         int    `toml:"callback_delay_ms" envconfig:"callback_delay_ms"`
	FlushThreshold          int    `toml:"flush_threshold" envconfig:"flush_threshold"`
	TTYPath                 string `toml:"tty_path" envconfig:"tty_path"`
}

// EngineConfig selects and configures the protocol engine
type EngineConfig struct {
	Type            string `toml:"type" envconfig:"type"`
	AltScreen       bool   `toml:"alt_screen" envconfig:"alt_screen"`
	HideCursor      bool   `toml:"hide_cursor" envconfig:"hide_cursor"`
	DisableAutoWrap bool   `toml:"disable_autowrap" envconfig:"disable_autowrap"`
	BracketedPaste  bool   `toml:"bracketed_paste" envconfig:"bracketed_paste"`
	Mouse           string `toml:"mouse" envconfig:"mouse"` // none, click, drag, motion
}

// LogConfig maps onto logging.Config
type LogConfig struct {
	File        string `toml:"file" envconfig:"file"`
	Level       string `toml:"level" envconfig:"level"`
	MaxSizeMB   int    `toml:"max_size_mb" envconfig:"max_size_mb"`
	Development bool   `toml:"development" envconfig:"development"`
}

// MetricsConfig configures the optional prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr" envconfig:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			AutoDetectMessage:   session.DefaultAutoDetectTimeoutMessage,
			AutoDetectTimeoutMs: int(session.DefaultAutoDetectTimeout / time.Millisecond),
			CallbackDelayMs:     int(session.DefaultCallbackDelay / time.Millisecond),
			FlushThreshold:      termio.DefaultFlushThreshold,
			TTYPath:             rawmode.ControllingTerminal,
		},
		Engine: EngineConfig{
			Type:            EngineANSI,
			AltScreen:       true,
			HideCursor:      true,
			DisableAutoWrap: true,
			BracketedPaste:  true,
			Mouse:           "click",
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: int(logging.DefaultMaxSize >> 20),
		},
	}
}

// Load applies the file at path (optional) and environment overrides on top of defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can use
func (c *Config) Validate() error {
	switch c.Engine.Type {
	case EngineANSI, EngineTcell:
	default:
		return fmt.Errorf("engine type %q: want %q or %q", c.Engine.Type, EngineANSI, EngineTcell)
	}
	if _, err := parseMouse(c.Engine.Mouse); err != nil {
		return err
	}
	if c.Session.AutoDetectTimeoutMs < 0 || c.Session.CallbackDelayMs < 0 || c.Session.FlushThreshold < 0 {
		return fmt.Errorf("session timings and flush threshold must not be negative")
	}
	return nil
}

// Encode renders the configuration as TOML
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// Capabilities returns the raw-mode capability mask
func (c *Config) Capabilities() rawmode.Capability {
	caps := rawmode.CapabilityNone
	if c.Session.AllowInterrupt {
		caps |= rawmode.AllowInterrupt
	}
	if c.Session.AllowQuit {
		caps |= rawmode.AllowQuit
	}
	if c.Session.AllowSuspend {
		caps |= rawmode.AllowSuspend
	}
	return caps
}

// SessionOptions converts the session section; registry, logger and metrics are left for the caller
func (c *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.Capabilities = c.Capabilities()
	opts.ControllingTerminalOnly = c.Session.ControllingTerminalOnly
	opts.DisableAutoResize = c.Session.DisableAutoResize
	opts.DisableAutoDetectTimeoutMessage = c.Session.DisableAutoDetectMsg
	if c.Session.AutoDetectMessage != "" {
		opts.AutoDetectTimeoutMessage = c.Session.AutoDetectMessage
	}
	if c.Session.AutoDetectTimeoutMs > 0 {
		opts.AutoDetectTimeout = time.Duration(c.Session.AutoDetectTimeoutMs) * time.Millisecond
	}
	if c.Session.CallbackDelayMs > 0 {
		opts.CallbackDelay = time.Duration(c.Session.CallbackDelayMs) * time.Millisecond
	}
	if c.Session.FlushThreshold > 0 {
		opts.FlushThreshold = c.Session.FlushThreshold
	}
	if c.Session.TTYPath != "" {
		opts.TTYPath = c.Session.TTYPath
	}
	return opts
}

// EngineOptions converts the engine section for the ANSI engine
func (c *Config) EngineOptions() terminal.Options {
	mouse, _ := parseMouse(c.Engine.Mouse)
	return terminal.Options{
		AltScreen:       c.Engine.AltScreen,
		HideCursor:      c.Engine.HideCursor,
		DisableAutoWrap: c.Engine.DisableAutoWrap,
		BracketedPaste:  c.Engine.BracketedPaste,
		Mouse:           mouse,
	}
}

// LoggingConfig converts the log section
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		File:        c.Log.File,
		Level:       c.Log.Level,
		MaxSize:     int64(c.Log.MaxSizeMB) << 20,
		Development: c.Log.Development,
	}
}

func parseMouse(s string) (protocol.MouseMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return protocol.MouseModeNone, nil
	case "click":
		return protocol.MouseModeClick, nil
	case "drag":
		return protocol.MouseModeClick | protocol.MouseModeDrag, nil
	case "motion":
		return protocol.MouseModeClick | protocol.MouseModeDrag | protocol.MouseModeMotion, nil
	}
	return protocol.MouseModeNone, fmt.Errorf("mouse mode %q: want none, click, drag or motion", s)
}
