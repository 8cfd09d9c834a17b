//go:build unix

package session

import (
	"errors"
	"fmt"
	"io"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/rawmode"
	"github.com/lixenwraith/rawtty/reactor"
	"github.com/lixenwraith/rawtty/restore"
	"github.com/lixenwraith/rawtty/termio"
)

// ErrAlreadyInitialized is returned by Setup while the session holds a device
var ErrAlreadyInitialized = errors.New("terminal session already initialized")

// Session is one raw-mode terminal bound to a protocol engine
type Session struct {
	id      string
	loop    *reactor.Loop
	factory protocol.Factory
	opts    Options
	logger  *zap.Logger

	dev        *rawmode.Device
	original   rawmode.Attributes
	stream     *termio.Stream
	engine     protocol.Engine
	integ      *integration
	restorable bool

	watch         *reactor.Watch
	callbackTimer *reactor.Timer
	detectTimer   *reactor.Timer

	callbackRequested bool
	inInput           bool

	observers []Observer
	readBuf   [termio.ChunkSize]byte
}

var _ restore.Target = (*Session)(nil)

// New creates a session driven by loop; nothing touches the OS until Setup
func New(loop *reactor.Loop, factory protocol.Factory, opts Options) *Session {
	opts = opts.normalize()
	id := uuid.NewString()
	s := &Session{
		id:      id,
		loop:    loop,
		factory: factory,
		opts:    opts,
		logger:  opts.Logger.With(zap.String("session", id)),
	}
	s.callbackTimer = loop.NewTimer(s.onCallbackTimer)
	s.detectTimer = loop.NewTimer(s.onAutoDetectTimeout)
	return s
}

// TerminalAvailable reports whether Setup has a device to work with
func TerminalAvailable() bool {
	return rawmode.Available()
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Setup acquires the terminal, enters raw mode and starts input processing
func (s *Session) Setup() error {
	if s.dev != nil {
		return ErrAlreadyInitialized
	}

	candidates := s.opts.Candidates
	if s.opts.ControllingTerminalOnly {
		candidates = nil
	}
	dev, err := rawmode.Acquire(candidates, s.opts.TTYPath)
	if err != nil {
		return s.setupFailed(err)
	}

	original, err := rawmode.CaptureAttributes(dev.Fd)
	if err != nil {
		dev.Release()
		return s.setupFailed(err)
	}
	if err := rawmode.ApplyRawMode(dev.Fd, s.opts.Capabilities); err != nil {
		// Roll back in case the set partially applied
		rawmode.RestoreAttributes(dev.Fd, original)
		dev.Release()
		return s.setupFailed(err)
	}

	s.dev = dev
	s.original = original
	s.callbackRequested = false
	s.stream = termio.NewStream(dev.Fd, termio.Options{
		FlushThreshold: s.opts.FlushThreshold,
		Metrics:        s.opts.Metrics,
		OnFatal:        s.onFatal,
	})
	s.integ = &integration{s: s}
	s.engine = s.factory(s.integ)
	s.engine.SetEventHandler(s.onEngineEvent)
	s.engine.SetRawInputFilter(s.onRawSequence)

	cols, rows := rawmode.WindowSize(dev.Fd)
	s.engine.Resize(cols, rows)

	s.restorable = s.opts.Registry.Claim(restore.Claim{
		Fd:       dev.Fd,
		Original: original,
		Target:   targetOf(s),
		Dispatch: s.loop.Post,
	})
	if s.restorable {
		s.opts.Registry.PublishEscape(dev.Fd, s.engine.RestoreSequence())
	}

	s.watch = s.loop.WatchReadable(dev.Fd, s.onReadable)

	if !s.opts.DisableAutoDetectTimeoutMessage {
		s.detectTimer.Start(s.opts.AutoDetectTimeout)
	}
	s.engine.AutoDetect()

	s.opts.Metrics.Transition("setup")
	s.logger.Info("terminal session set up",
		zap.Int("fd", dev.Fd),
		zap.Bool("owned", dev.Owned),
		zap.Int("cols", cols),
		zap.Int("rows", rows),
		zap.Bool("restorable", s.restorable))
	return nil
}

func (s *Session) setupFailed(err error) error {
	s.opts.Metrics.Transition("setup_failed")
	s.logger.Warn("terminal session setup failed", zap.Error(err))
	return err
}

// targetOf resolves the session weakly so the registry never keeps it alive
func targetOf(s *Session) func() restore.Target {
	wp := weak.Make(s)
	return func() restore.Target {
		if p := wp.Value(); p != nil && p.dev != nil {
			return p
		}
		return nil
	}
}

// Teardown restores the terminal and releases the device; a no-op when not set up
func (s *Session) Teardown() error {
	if s.dev == nil {
		return nil
	}
	fd := s.dev.Fd

	s.callbackTimer.Stop()
	s.detectTimer.Stop()
	s.callbackRequested = false
	if s.watch != nil {
		s.watch.Stop()
		<-s.watch.Done()
		s.watch = nil
	}

	s.engine.ResetAttributes()
	s.engine.FreeWithRestore()

	if s.restorable {
		s.opts.Registry.ClearEscape(fd)
	}

	var err error
	err = multierr.Append(err, rawmode.RestoreAttributes(fd, s.original))
	if s.restorable {
		s.opts.Registry.Detach(fd)
	}
	err = multierr.Append(err, s.dev.Release())

	s.engine = nil
	s.integ = nil
	s.dev = nil
	s.restorable = false

	s.opts.Metrics.Transition("teardown")
	s.logger.Info("terminal session torn down", zap.Int("fd", fd), zap.Error(err))
	return err
}

// Resize propagates a new size to the engine and observers
func (s *Session) Resize(cols, rows int) {
	if s.engine == nil {
		return
	}
	s.engine.Resize(cols, rows)
	s.logger.Debug("terminal resized", zap.Int("cols", cols), zap.Int("rows", rows))
	s.dispatch(Event{Kind: KindResize, Cols: cols, Rows: rows})
}

// ForceRepaint makes the engine redraw everything on its next output
func (s *Session) ForceRepaint() {
	if s.engine == nil {
		return
	}
	s.engine.ForceRepaint()
	s.dispatch(Event{Kind: KindRepaint})
}

// AutoResize reports whether window changes are applied automatically
func (s *Session) AutoResize() bool {
	return !s.opts.DisableAutoResize
}

// Engine returns the protocol engine, nil when not set up
func (s *Session) Engine() protocol.Engine {
	return s.engine
}

// Size returns the engine's current size
func (s *Session) Size() (int, int) {
	if s.engine == nil {
		return 0, 0
	}
	return s.engine.Size()
}

// IsBad reports that the device is unusable or absent
func (s *Session) IsBad() bool {
	return s.stream == nil || s.dev == nil || s.stream.IsBad()
}

// Err returns the fatal I/O error, if any
func (s *Session) Err() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Err()
}

// Restorable reports whether signal-time restoration covers this session
func (s *Session) Restorable() bool {
	return s.dev != nil && s.restorable && s.opts.Registry.Active(s.dev.Fd)
}

// Fd returns the terminal descriptor, -1 when not set up
func (s *Session) Fd() int {
	if s.dev == nil {
		return -1
	}
	return s.dev.Fd
}

// Flush transmits buffered output
func (s *Session) Flush() {
	if s.stream != nil {
		s.stream.Flush()
	}
}

// --- Loop callbacks ---

// onReadable reads one chunk and feeds it to the engine
func (s *Session) onReadable() {
	if s.engine == nil {
		return
	}
	s.callbackTimer.Stop()
	s.callbackRequested = false

	n, err := s.stream.ReadChunk(s.readBuf[:])
	if err != nil {
		s.closeInput(err)
		return
	}
	if n == 0 {
		return
	}

	s.inInput = true
	s.engine.AddInputData(s.readBuf[:n])
	s.inInput = false

	// An observer may have torn the session down during dispatch
	if s.engine == nil {
		return
	}

	if peek := s.engine.PeekInputBuffer(); len(peek) > 0 {
		s.dispatch(Event{Kind: KindRawSequencePending, Raw: peek})
	}
	if s.callbackRequested && s.engine != nil {
		s.callbackTimer.Start(s.opts.CallbackDelay)
	}
}

// closeInput stops reading after EOF or a fatal read
func (s *Session) closeInput(err error) {
	if s.watch != nil {
		s.watch.Stop()
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	s.logger.Info("terminal input closed", zap.Error(err))
	s.dispatch(Event{Kind: KindClosed, Err: err})
}

func (s *Session) onCallbackTimer() {
	s.callbackRequested = false
	if s.engine != nil {
		s.engine.Callback()
	}
}

func (s *Session) onAutoDetectTimeout() {
	if s.engine == nil || s.engine.AutoDetectFinished() {
		return
	}
	s.logger.Warn("terminal auto detection timed out", zap.Duration("timeout", s.opts.AutoDetectTimeout))
	s.stream.WriteString(s.opts.AutoDetectTimeoutMessage)
	s.stream.Flush()
}

func (s *Session) onEngineEvent(ev protocol.Event) {
	s.dispatch(Event{Kind: KindNative, Native: ev})
}

func (s *Session) onRawSequence(seq []byte, overflow bool) bool {
	return s.dispatch(Event{Kind: KindRawSequence, Raw: seq, Overflow: overflow})
}

func (s *Session) onFatal(err error) {
	s.logger.Error("terminal i/o failed", zap.Error(err))
}

// requestCallback arms the deferred engine callback; during input it is armed once the chunk is processed
func (s *Session) requestCallback() {
	s.callbackRequested = true
	if !s.inInput {
		s.callbackTimer.Start(s.opts.CallbackDelay)
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s fd %d", s.id, s.Fd())
}
