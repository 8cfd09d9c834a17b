package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrLoopRunning is returned by Run when the loop is already running or has finished
var ErrLoopRunning = errors.New("reactor loop already started")

// taskQueueSize bounds posted-but-unprocessed closures before Post blocks
const taskQueueSize = 256

// Loop is a single-goroutine executor
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	started  atomic.Bool
	stopOnce sync.Once

	// Injected crash handler, keeps reactor independent of terminal restore
	panicHandler func(r any)
}

// New creates a loop; call Run to start processing
func New() *Loop {
	return &Loop{
		tasks: make(chan func(), taskQueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SetPanicHandler routes panics raised by loop callbacks to fn instead of crashing the loop goroutine
func (l *Loop) SetPanicHandler(fn func(r any)) {
	l.panicHandler = fn
}

// Run processes posted work until ctx is cancelled or Stop is called
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.quit:
			return nil
		case fn := <-l.tasks:
			l.dispatch(fn)
		}
	}
}

// dispatch runs one task with panic recovery
func (l *Loop) dispatch(fn func()) {
	if l.panicHandler != nil {
		defer func() {
			if r := recover(); r != nil {
				l.panicHandler(r)
			}
		}()
	}
	fn()
}

// Post queues fn for execution on the loop goroutine
// Returns false if the loop has been stopped
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Stop ends Run after the task in progress. Pending tasks are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
}

// Done is closed when Run returns
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stopped reports whether Stop has been called
func (l *Loop) Stopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish
// Must not be called from the loop goroutine
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.quit:
		return false
	}
}
