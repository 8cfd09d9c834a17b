//go:build unix

package restore

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/rawmode"
)

// Target receives deferred resume and resize work on the claimant's loop
type Target interface {
	ForceRepaint()
	Resize(cols, rows int)
	// AutoResize reports whether window-size changes propagate automatically
	AutoResize() bool
}

// Claim describes the session becoming process-restorable
type Claim struct {
	Fd       int
	Original rawmode.Attributes
	// Target resolves the live session, nil once it is gone
	Target func() Target
	// Dispatch runs work on the claimant's loop, false when the loop is stopped
	Dispatch func(func()) bool
}

// Registry is the process restore state; at most one claim for its lifetime
type Registry struct {
	claimed atomic.Bool
	active  atomic.Bool

	// Written once in Claim before active is published
	fd       int
	original rawmode.Attributes
	target   func() Target
	dispatch func(func()) bool

	escape atomic.Pointer[[]byte]

	// Signal goroutine only
	preStop      rawmode.Attributes
	preStopValid bool

	resumed atomic.Bool
	resized atomic.Bool
	poke    chan struct{}

	signals bool
	sigCh   chan os.Signal

	// OS hooks, replaced in tests
	subscribe   func(sigs ...os.Signal)
	unsubscribe func(sigs ...os.Signal)
	raise       func(sig os.Signal)

	logger *zap.Logger

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Registry
type Option func(*Registry)

// WithSignals controls installation of OS signal handlers; disabled registries only restore on demand
func WithSignals(enabled bool) Option {
	return func(r *Registry) {
		r.signals = enabled
	}
}

// WithLogger sets the logger used outside the signal path
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates an unclaimed registry; goroutines start on the first claim
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		fd:      -1,
		poke:    make(chan struct{}, 1),
		signals: true,
		sigCh:   make(chan os.Signal, 8),
		logger:  zap.NewNop(),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.signals {
		r.subscribe = func(sigs ...os.Signal) { signalNotify(r.sigCh, sigs...) }
		r.unsubscribe = signalReset
		r.raise = raiseSelf
	} else {
		r.subscribe = func(...os.Signal) {}
		r.unsubscribe = func(...os.Signal) {}
		r.raise = func(os.Signal) {}
	}
	return r
}

// Claim registers c as the restorable session
// Only the first claim succeeds; later claims leave the published data untouched
func (r *Registry) Claim(c Claim) bool {
	if !r.claimed.CompareAndSwap(false, true) {
		r.logger.Debug("restore registry already claimed", zap.Int("fd", c.Fd))
		return false
	}

	r.fd = c.Fd
	r.original = c.Original
	r.target = c.Target
	r.dispatch = c.Dispatch
	empty := []byte{}
	r.escape.Store(&empty)
	r.active.Store(true)

	r.wg.Add(1)
	go r.notifyLoop()

	if r.signals {
		r.subscribe(allSignals()...)
		r.wg.Add(1)
		go r.signalLoop()
	}

	r.logger.Info("terminal registered for signal restore",
		zap.Int("fd", c.Fd),
		zap.Bool("signals", r.signals))
	return true
}

// PublishEscape sets the bytes written after attribute restore
// The slice is copied; the published copy is never mutated
func (r *Registry) PublishEscape(fd int, seq []byte) {
	if !r.owns(fd) {
		return
	}
	p := make([]byte, len(seq))
	copy(p, seq)
	r.escape.Store(&p)
}

// ClearEscape stops escape output for fd, attribute restore stays armed
func (r *Registry) ClearEscape(fd int) {
	if !r.owns(fd) {
		return
	}
	empty := []byte{}
	r.escape.Store(&empty)
}

// Detach disarms restoration for fd; the claim is not released
func (r *Registry) Detach(fd int) {
	if !r.owns(fd) {
		return
	}
	r.ClearEscape(fd)
	r.active.Store(false)
	r.logger.Debug("terminal detached from signal restore", zap.Int("fd", fd))
}

// Active reports whether fd is the armed restorable descriptor
func (r *Registry) Active(fd int) bool {
	return r.owns(fd) && r.active.Load()
}

// Claimed reports whether any session has claimed the registry
func (r *Registry) Claimed() bool {
	return r.claimed.Load()
}

// Restore applies the original attributes and writes the escape sequence
// Returns false when nothing is armed
func (r *Registry) Restore() bool {
	if !r.active.Load() {
		return false
	}
	rawmode.SetAttributes(r.fd, &r.original)
	r.writeEscape()
	return true
}

// Close stops the registry goroutines and OS signal delivery
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		if r.signals {
			signalStop(r.sigCh)
		}
		close(r.quit)
		r.wg.Wait()
	})
}

func (r *Registry) owns(fd int) bool {
	return r.claimed.Load() && r.fd == fd
}

func (r *Registry) writeEscape() {
	esc := r.escape.Load()
	if esc == nil || len(*esc) == 0 {
		return
	}
	unix.Write(r.fd, *esc)
}

// record sets a deferred flag and wakes the notifier
func (r *Registry) record(flag *atomic.Bool) {
	flag.Store(true)
	select {
	case r.poke <- struct{}{}:
	default:
	}
}

// notifyLoop hands deferred work to the claimant's loop
func (r *Registry) notifyLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case <-r.poke:
			if r.dispatch == nil || !r.dispatch(r.runDeferred) {
				r.logger.Debug("deferred terminal notification dropped")
			}
		}
	}
}

// runDeferred executes on the claimant's loop
func (r *Registry) runDeferred() {
	resumed := r.resumed.Swap(false)
	resized := r.resized.Swap(false)

	var t Target
	if r.target != nil {
		t = r.target()
	}
	if t == nil {
		return
	}

	if resumed {
		t.ForceRepaint()
	}
	if resized && t.AutoResize() {
		cols, rows, err := rawmode.QueryWindowSize(r.fd)
		if err != nil {
			return
		}
		t.Resize(cols, rows)
	}
}
