//go:build unix

// Package tcelltty adapts a raw-mode terminal device to tcell.Tty so a tcell
// screen gets the same signal-time restoration as a session.
package tcelltty

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/metrics"
	"github.com/lixenwraith/rawtty/rawmode"
	"github.com/lixenwraith/rawtty/restore"
	"github.com/lixenwraith/rawtty/termio"
)

// pollTimeoutMs bounds a blocked Read so Drain and Close are noticed
const pollTimeoutMs = 100

// Options configures a Tty
type Options struct {
	Candidates   []int
	Path         string
	Capabilities rawmode.Capability
	// Registry defaults to restore.Default()
	Registry       *restore.Registry
	FlushThreshold int
	Logger         *zap.Logger
	Metrics        *metrics.Collector
}

// DefaultOptions acquires like a session does
func DefaultOptions() Options {
	return Options{
		Candidates: rawmode.DefaultCandidates,
		Path:       rawmode.ControllingTerminal,
	}
}

// Tty implements tcell.Tty on top of rawmode and termio
type Tty struct {
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex // Guards dev, stream and original
	dev        *rawmode.Device
	stream     *termio.Stream
	original   rawmode.Attributes
	restorable bool

	started atomic.Bool
	drained atomic.Bool
	closed  atomic.Bool

	cbMu     sync.Mutex
	resizeCb func()

	winch     chan os.Signal
	winchStop chan struct{}
	winchDone chan struct{}
}

var _ tcell.Tty = (*Tty)(nil)

// New creates an unstarted Tty; the device is acquired on the first Start
func New(opts Options) *Tty {
	if opts.Registry == nil {
		opts.Registry = restore.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tty{opts: opts, logger: opts.Logger}
}

// NewScreen builds a terminfo screen over a new Tty
func NewScreen(opts Options) (tcell.Screen, *Tty, error) {
	tty := New(opts)
	screen, err := tcell.NewTerminfoScreenFromTty(tty)
	if err != nil {
		return nil, nil, err
	}
	return screen, tty, nil
}

// Start acquires the device on first use and enters raw mode
func (t *Tty) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return os.ErrClosed
	}
	if t.dev == nil {
		if err := t.acquire(); err != nil {
			return err
		}
	}

	if err := rawmode.ApplyRawMode(t.dev.Fd, t.opts.Capabilities); err != nil {
		return err
	}
	if t.restorable {
		t.opts.Registry.PublishEscape(t.dev.Fd, restore.DefaultEscape)
	}
	t.drained.Store(false)
	t.started.Store(true)
	return nil
}

// acquire opens the device and claims the registry; caller holds mu
func (t *Tty) acquire() error {
	dev, err := rawmode.Acquire(t.opts.Candidates, t.opts.Path)
	if err != nil {
		return err
	}
	original, err := rawmode.CaptureAttributes(dev.Fd)
	if err != nil {
		dev.Release()
		return err
	}

	t.dev = dev
	t.original = original
	t.stream = termio.NewStream(dev.Fd, termio.Options{
		FlushThreshold: t.opts.FlushThreshold,
		Metrics:        t.opts.Metrics,
	})
	t.restorable = t.opts.Registry.Claim(restore.Claim{
		Fd:       dev.Fd,
		Original: original,
		Target:   t.target,
		Dispatch: func(fn func()) bool {
			fn()
			return true
		},
	})
	t.logger.Info("tcell tty acquired", zap.Int("fd", dev.Fd), zap.Bool("restorable", t.restorable))
	return nil
}

func (t *Tty) target() restore.Target {
	if !t.started.Load() {
		return nil
	}
	return t
}

// Stop restores the original line discipline; Start may be called again
func (t *Tty) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil || !t.started.Load() {
		return nil
	}
	t.started.Store(false)
	t.stream.Flush()
	if t.restorable {
		t.opts.Registry.ClearEscape(t.dev.Fd)
	}
	return rawmode.RestoreAttributes(t.dev.Fd, t.original)
}

// Drain makes blocked and future reads return immediately until the next Start
func (t *Tty) Drain() error {
	t.drained.Store(true)
	return nil
}

// NotifyResize registers cb for window size changes, nil unregisters
func (t *Tty) NotifyResize(cb func()) {
	t.cbMu.Lock()
	t.resizeCb = cb
	t.cbMu.Unlock()

	// Restorable ttys get resize notifications from the registry
	if t.restorable {
		return
	}
	if cb != nil {
		t.startResizeWatch()
	} else {
		t.stopResizeWatch()
	}
}

// WindowSize implements tcell.Tty
func (t *Tty) WindowSize() (tcell.WindowSize, error) {
	fd := t.fd()
	if fd < 0 {
		return tcell.WindowSize{}, os.ErrClosed
	}
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return tcell.WindowSize{}, err
	}
	size := tcell.WindowSize{
		Width:       int(ws.Col),
		Height:      int(ws.Row),
		PixelWidth:  int(ws.Xpixel),
		PixelHeight: int(ws.Ypixel),
	}
	if size.Width == 0 || size.Height == 0 {
		size.Width, size.Height = rawmode.DefaultCols, rawmode.DefaultRows
	}
	return size, nil
}

// Read waits for input in bounded polls so Drain and Close take effect
func (t *Tty) Read(p []byte) (int, error) {
	for {
		if t.closed.Load() {
			return 0, io.EOF
		}
		if t.drained.Load() {
			return 0, nil
		}
		fd := t.fd()
		if fd < 0 {
			return 0, io.EOF
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, err
		}
		if n == 0 {
			continue
		}

		t.mu.Lock()
		if t.stream == nil {
			t.mu.Unlock()
			return 0, io.EOF
		}
		c, err := t.stream.ReadChunk(p)
		t.mu.Unlock()
		if err != nil || c > 0 {
			return c, err
		}
	}
}

// Write transmits p through the buffered stream, flushing before returning
func (t *Tty) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream == nil {
		return 0, os.ErrClosed
	}
	t.stream.Write(p)
	t.stream.Flush()
	if t.stream.IsBad() {
		return 0, t.stream.Err()
	}
	return len(p), nil
}

// Close restores the terminal and releases the device
func (t *Tty) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.stopResizeWatch()
	err := t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return err
	}
	if t.restorable {
		t.opts.Registry.Detach(t.dev.Fd)
	}
	if relErr := t.dev.Release(); err == nil {
		err = relErr
	}
	t.dev = nil
	t.stream = nil
	return err
}

// Restorable reports whether the registry covers this tty
func (t *Tty) Restorable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil && t.restorable && t.opts.Registry.Active(t.dev.Fd)
}

// Fd returns the device descriptor, -1 before Start or after Close
func (t *Tty) Fd() int {
	return t.fd()
}

func (t *Tty) fd() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return -1
	}
	return t.dev.Fd
}

// --- restore.Target ---

// ForceRepaint asks tcell to re-query the size, which makes the application redraw
func (t *Tty) ForceRepaint() {
	t.notifyResize()
}

func (t *Tty) Resize(int, int) {
	t.notifyResize()
}

func (t *Tty) AutoResize() bool {
	return true
}

func (t *Tty) notifyResize() {
	t.cbMu.Lock()
	cb := t.resizeCb
	t.cbMu.Unlock()
	if cb != nil {
		cb()
	}
}

// --- SIGWINCH for ttys the registry does not cover ---

func (t *Tty) startResizeWatch() {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	if t.winch != nil {
		return
	}
	t.winch = make(chan os.Signal, 1)
	t.winchStop = make(chan struct{})
	t.winchDone = make(chan struct{})
	signal.Notify(t.winch, syscall.SIGWINCH)
	go t.watchResize(t.winch, t.winchStop, t.winchDone)
}

func (t *Tty) stopResizeWatch() {
	t.cbMu.Lock()
	if t.winch == nil {
		t.cbMu.Unlock()
		return
	}
	signal.Stop(t.winch)
	close(t.winchStop)
	done := t.winchDone
	t.winch = nil
	t.cbMu.Unlock()
	<-done
}

func (t *Tty) watchResize(ch <-chan os.Signal, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ch:
			t.notifyResize()
		}
	}
}
