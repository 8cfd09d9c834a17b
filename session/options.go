package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/lixenwraith/rawtty/metrics"
	"github.com/lixenwraith/rawtty/rawmode"
	"github.com/lixenwraith/rawtty/restore"
	"github.com/lixenwraith/rawtty/termio"
)

const (
	DefaultCallbackDelay     = 100 * time.Millisecond
	DefaultAutoDetectTimeout = 10 * time.Second

	DefaultAutoDetectTimeoutMessage = "Terminal auto detection is taking unusually long, press space to abort."
)

// Options configures a Session
type Options struct {
	// Capabilities keeps the listed signal characters active in raw mode
	Capabilities rawmode.Capability
	// ControllingTerminalOnly skips the standard descriptors and opens TTYPath directly
	ControllingTerminalOnly bool
	DisableAutoResize       bool

	DisableAutoDetectTimeoutMessage bool
	AutoDetectTimeoutMessage        string
	AutoDetectTimeout               time.Duration

	// CallbackDelay is how long partial input waits before the engine resolves it
	CallbackDelay  time.Duration
	FlushThreshold int

	Candidates []int
	TTYPath    string

	// Registry defaults to restore.Default()
	Registry *restore.Registry
	Logger   *zap.Logger
	Metrics  *metrics.Collector
}

// DefaultOptions returns options matching a plain full-screen application
func DefaultOptions() Options {
	return Options{
		AutoDetectTimeoutMessage: DefaultAutoDetectTimeoutMessage,
		AutoDetectTimeout:        DefaultAutoDetectTimeout,
		CallbackDelay:            DefaultCallbackDelay,
		FlushThreshold:           termio.DefaultFlushThreshold,
		Candidates:               rawmode.DefaultCandidates,
		TTYPath:                  rawmode.ControllingTerminal,
	}
}

// normalize fills zero values with defaults
func (o Options) normalize() Options {
	if o.AutoDetectTimeout <= 0 {
		o.AutoDetectTimeout = DefaultAutoDetectTimeout
	}
	if o.AutoDetectTimeoutMessage == "" {
		o.AutoDetectTimeoutMessage = DefaultAutoDetectTimeoutMessage
	}
	if o.CallbackDelay <= 0 {
		o.CallbackDelay = DefaultCallbackDelay
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = termio.DefaultFlushThreshold
	}
	if o.Candidates == nil && !o.ControllingTerminalOnly {
		o.Candidates = rawmode.DefaultCandidates
	}
	if o.Registry == nil {
		o.Registry = restore.Default()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
