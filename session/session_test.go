//go:build unix

package session

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/metrics"
	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/rawmode"
	"github.com/lixenwraith/rawtty/reactor"
	"github.com/lixenwraith/rawtty/restore"
	"github.com/lixenwraith/rawtty/terminal"
)

// fakeEngine records integration traffic; touched only on the loop goroutine
type fakeEngine struct {
	integ    protocol.Integration
	onEvent  protocol.EventHandler
	filter   protocol.RawFilter
	input    []byte
	detected bool

	requestOnInput bool
	callbacks      int
	cols, rows     int
	repaints       int
	resets         int
	frees          int
	detects        int
}

func (f *fakeEngine) AddInputData(p []byte) {
	f.input = append(f.input, p...)
	if f.requestOnInput {
		f.integ.RequestCallback()
	}
}
func (f *fakeEngine) PeekInputBuffer() []byte                 { return f.input }
func (f *fakeEngine) Callback()                               { f.callbacks++ }
func (f *fakeEngine) SetEventHandler(h protocol.EventHandler) { f.onEvent = h }
func (f *fakeEngine) SetRawInputFilter(r protocol.RawFilter)  { f.filter = r }
func (f *fakeEngine) AutoDetect()                             { f.detects++ }
func (f *fakeEngine) AutoDetectFinished() bool                { return f.detected }
func (f *fakeEngine) Resize(cols, rows int)                   { f.cols, f.rows = cols, rows }
func (f *fakeEngine) Size() (int, int)                        { return f.cols, f.rows }
func (f *fakeEngine) ForceRepaint()                           { f.repaints++ }
func (f *fakeEngine) RestoreSequence() []byte                 { return nil }
func (f *fakeEngine) ResetAttributes()                        { f.resets++ }
func (f *fakeEngine) FreeWithRestore() {
	f.integ.Flush()
	f.frees++
	f.integ.Free()
}

type rig struct {
	loop     *reactor.Loop
	master   *os.File
	slave    *os.File
	registry *restore.Registry
	session  *Session
	engine   *fakeEngine
}

// newRig builds a running loop and a session bound to a fresh pty
// factory nil selects the fake engine
func newRig(t *testing.T, registry *restore.Registry, factory protocol.Factory, mutate func(*Options)) *rig {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err)
	require.NoError(t, pty.Setsize(master, &pty.Winsize{Rows: 30, Cols: 100}))

	if registry == nil {
		registry = restore.NewRegistry(restore.WithSignals(false))
		t.Cleanup(registry.Close)
	}

	r := &rig{
		loop:     reactor.New(),
		master:   master,
		slave:    slave,
		registry: registry,
	}
	go r.loop.Run(context.Background())
	t.Cleanup(func() {
		r.loop.Stop()
		<-r.loop.Done()
		slave.Close()
		master.Close()
	})

	if factory == nil {
		factory = func(integ protocol.Integration) protocol.Engine {
			r.engine = &fakeEngine{integ: integ, detected: true}
			return r.engine
		}
	}

	opts := DefaultOptions()
	opts.Candidates = []int{int(slave.Fd())}
	opts.TTYPath = ""
	opts.Registry = registry
	if mutate != nil {
		mutate(&opts)
	}
	r.session = New(r.loop, factory, opts)
	t.Cleanup(func() {
		r.call(t, func() { r.session.Teardown() })
	})
	return r
}

// call runs fn on the loop and waits
func (r *rig) call(t *testing.T, fn func()) {
	t.Helper()
	require.True(t, r.loop.Call(fn), "loop not running")
}

func (r *rig) setup(t *testing.T) {
	t.Helper()
	var err error
	r.call(t, func() { err = r.session.Setup() })
	require.NoError(t, err)
}

func (r *rig) attrs(t *testing.T) rawmode.Attributes {
	t.Helper()
	a, err := rawmode.CaptureAttributes(int(r.slave.Fd()))
	require.NoError(t, err)
	return a
}

// readMaster collects output until the pty stays quiet for the timeout
func (r *rig) readMaster(t *testing.T, timeoutMs int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 1024)
	fd := int(r.master.Fd())
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if n <= 0 || err != nil {
			return out
		}
		c, err := unix.Read(fd, buf)
		if c <= 0 || err != nil {
			return out
		}
		out = append(out, buf[:c]...)
	}
}

// recorder collects observer events across goroutines
type recorder struct {
	mu      sync.Mutex
	events  []Event
	consume func(Event) bool
	notify  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (rec *recorder) Observe(ev Event) bool {
	ev.Raw = append([]byte(nil), ev.Raw...)
	rec.mu.Lock()
	rec.events = append(rec.events, ev)
	rec.mu.Unlock()
	select {
	case rec.notify <- struct{}{}:
	default:
	}
	if rec.consume != nil {
		return rec.consume(ev)
	}
	return false
}

func (rec *recorder) byKind(k Kind) []Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []Event
	for _, ev := range rec.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls until cond holds or fails the test
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestSetup_SecondCallFails(t *testing.T) {
	r := newRig(t, nil, nil, nil)
	r.setup(t)
	raw := r.attrs(t)

	var err error
	r.call(t, func() { err = r.session.Setup() })
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, raw, r.attrs(t), "second setup must not touch the terminal")
}

func TestSetupTeardown_RestoresAttributes(t *testing.T) {
	r := newRig(t, nil, nil, nil)
	before := r.attrs(t)

	r.setup(t)
	assert.NotEqual(t, before, r.attrs(t))
	r.call(t, func() {
		assert.False(t, r.session.IsBad())
		assert.Equal(t, int(r.slave.Fd()), r.session.Fd())
		cols, rows := r.session.Size()
		assert.Equal(t, 100, cols)
		assert.Equal(t, 30, rows)
	})

	var err error
	r.call(t, func() { err = r.session.Teardown() })
	require.NoError(t, err)
	assert.Equal(t, before, r.attrs(t))

	r.call(t, func() {
		assert.Equal(t, -1, r.session.Fd())
		assert.Nil(t, r.session.Engine())
		assert.True(t, r.session.IsBad())
		// Borrowed descriptor stays open
		_, err := rawmode.CaptureAttributes(int(r.slave.Fd()))
		assert.NoError(t, err)
	})

	// Session can be set up again
	r.setup(t)
}

func TestSetup_NoTerminal(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	r := newRig(t, nil, nil, func(o *Options) {
		o.Candidates = []int{int(pr.Fd())}
		o.TTYPath = ""
	})

	r.call(t, func() { err = r.session.Setup() })
	assert.ErrorIs(t, err, rawmode.ErrNoTerminalAvailable)
	r.call(t, func() {
		assert.True(t, r.session.IsBad())
		assert.Equal(t, -1, r.session.Fd())
	})
}

func TestSetup_ControllingTerminalOnly(t *testing.T) {
	r := newRig(t, nil, nil, func(o *Options) {
		o.ControllingTerminalOnly = true
	})
	// Stand-in for /dev/tty
	r.session.opts.TTYPath = r.slave.Name()

	r.setup(t)
	r.call(t, func() {
		assert.NotEqual(t, int(r.slave.Fd()), r.session.Fd())
		assert.True(t, r.session.dev.Owned)
	})
}

// Three 200 byte writes: one automatic flush past the threshold, one empty flush at teardown
func TestScenario_BufferedWritesAndTeardown(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	r := newRig(t, nil, nil, func(o *Options) {
		o.Metrics = collector
	})
	before := r.attrs(t)
	r.setup(t)

	chunk := bytes.Repeat([]byte("x"), 200)
	r.call(t, func() {
		r.engine.integ.Write(chunk)
		r.engine.integ.Write(chunk)
		assert.Equal(t, 0.0, testutil.ToFloat64(collector.Flushes), "below threshold nothing is flushed")
		r.engine.integ.Write(chunk)
		assert.Equal(t, 1.0, testutil.ToFloat64(collector.Flushes))
	})

	var err error
	r.call(t, func() { err = r.session.Teardown() })
	require.NoError(t, err)

	out := r.readMaster(t, 200)
	assert.Len(t, out, 600)
	assert.Equal(t, 600.0, testutil.ToFloat64(collector.BytesWritten))
	assert.Equal(t, 1, r.engine.frees)
	assert.Equal(t, 1, r.engine.resets)
	assert.Equal(t, before, r.attrs(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Sessions.WithLabelValues("setup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Sessions.WithLabelValues("teardown")))
}

func TestRegistry_OnlyFirstSessionRestorable(t *testing.T) {
	registry := restore.NewRegistry(restore.WithSignals(false))
	t.Cleanup(registry.Close)

	first := newRig(t, registry, terminal.New(terminal.Options{}), nil)
	second := newRig(t, registry, terminal.New(terminal.Options{}), nil)

	first.setup(t)
	second.setup(t)

	first.call(t, func() { assert.True(t, first.session.Restorable()) })
	second.call(t, func() { assert.False(t, second.session.Restorable()) })

	// Tearing down the non-restorable session leaves the first armed
	second.call(t, func() { require.NoError(t, second.session.Teardown()) })
	assert.True(t, registry.Active(int(first.slave.Fd())))

	first.call(t, func() { require.NoError(t, first.session.Teardown()) })
	assert.False(t, registry.Active(int(first.slave.Fd())))
	assert.True(t, registry.Claimed())
}

func TestInput_DecodedEventsAndPending(t *testing.T) {
	rec := newRecorder()
	r := newRig(t, nil, terminal.New(terminal.Options{}), func(o *Options) {
		o.CallbackDelay = 50 * time.Millisecond
		o.DisableAutoDetectTimeoutMessage = true
	})
	r.call(t, func() { r.session.AddObserver(rec) })
	r.setup(t)
	r.readMaster(t, 50)

	_, err := r.master.Write([]byte("a\x1b"))
	require.NoError(t, err)

	waitFor(t, func() bool { return len(rec.byKind(KindRawSequencePending)) == 1 })
	pending := rec.byKind(KindRawSequencePending)[0]
	assert.Equal(t, []byte("\x1b"), pending.Raw)

	// Lone ESC resolves after the callback delay
	waitFor(t, func() bool { return len(rec.byKind(KindNative)) == 2 })
	native := rec.byKind(KindNative)
	assert.Equal(t, 'a', native[0].Native.Rune)
	assert.Equal(t, protocol.KeyEscape, native[1].Native.Key)
}

func TestInput_CallbackCancelledByNewInput(t *testing.T) {
	rec := newRecorder()
	r := newRig(t, nil, terminal.New(terminal.Options{}), func(o *Options) {
		o.CallbackDelay = 400 * time.Millisecond
		o.DisableAutoDetectTimeoutMessage = true
	})
	r.call(t, func() { r.session.AddObserver(rec) })
	r.setup(t)

	_, err := r.master.Write([]byte("\x1b"))
	require.NoError(t, err)
	waitFor(t, func() bool { return len(rec.byKind(KindRawSequencePending)) == 1 })

	_, err = r.master.Write([]byte("[A"))
	require.NoError(t, err)
	waitFor(t, func() bool { return len(rec.byKind(KindNative)) == 1 })

	time.Sleep(600 * time.Millisecond)
	native := rec.byKind(KindNative)
	require.Len(t, native, 1)
	assert.Equal(t, protocol.KeyUp, native[0].Native.Key)
}

func TestInput_CallbackFiresOnce(t *testing.T) {
	r := newRig(t, nil, nil, func(o *Options) {
		o.CallbackDelay = 30 * time.Millisecond
	})
	r.setup(t)
	r.call(t, func() { r.engine.requestOnInput = true })

	_, err := r.master.Write([]byte("x"))
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)
	r.call(t, func() {
		assert.Equal(t, []byte("x"), r.engine.input)
		assert.Equal(t, 1, r.engine.callbacks)
	})
}

func TestRequestCallback_OutsideInputStartsTimer(t *testing.T) {
	r := newRig(t, nil, nil, func(o *Options) {
		o.CallbackDelay = 20 * time.Millisecond
	})
	r.setup(t)

	r.call(t, func() { r.engine.integ.RequestCallback() })
	waitFor(t, func() bool {
		var n int
		r.loop.Call(func() { n = r.engine.callbacks })
		return n == 1
	})
}

func TestInput_RawSequenceSuppression(t *testing.T) {
	rec := newRecorder()
	rec.consume = func(ev Event) bool {
		return ev.Kind == KindRawSequence && string(ev.Raw) == "q"
	}
	r := newRig(t, nil, terminal.New(terminal.Options{}), func(o *Options) {
		o.DisableAutoDetectTimeoutMessage = true
	})
	r.call(t, func() { r.session.AddObserver(rec) })
	r.setup(t)

	_, err := r.master.Write([]byte("qw"))
	require.NoError(t, err)

	waitFor(t, func() bool { return len(rec.byKind(KindNative)) == 1 })
	assert.Equal(t, 'w', rec.byKind(KindNative)[0].Native.Rune)
	assert.Len(t, rec.byKind(KindRawSequence), 2)
}

func TestObserverChain_StopsAtConsumer(t *testing.T) {
	r := newRig(t, nil, nil, nil)
	var order []string
	r.call(t, func() {
		r.session.AddObserver(ObserverFunc(func(ev Event) bool {
			order = append(order, "first")
			return true
		}))
		r.session.AddObserver(ObserverFunc(func(ev Event) bool {
			order = append(order, "second")
			return false
		}))
	})
	r.setup(t)

	r.call(t, func() {
		r.session.Resize(90, 20)
		assert.Equal(t, []string{"first"}, order)
		assert.Equal(t, 90, r.engine.cols)
	})
}

func TestResizeAndRepaint(t *testing.T) {
	rec := newRecorder()
	r := newRig(t, nil, nil, nil)
	r.call(t, func() { r.session.AddObserver(rec) })

	// Before setup both are no-ops
	r.call(t, func() {
		r.session.Resize(10, 10)
		r.session.ForceRepaint()
	})
	assert.Empty(t, rec.byKind(KindResize))

	r.setup(t)
	r.call(t, func() {
		r.session.Resize(120, 40)
		r.session.ForceRepaint()
		assert.Equal(t, 1, r.engine.repaints)
		assert.True(t, r.session.AutoResize())
	})
	resize := rec.byKind(KindResize)
	require.Len(t, resize, 1)
	assert.Equal(t, 120, resize[0].Cols)
	assert.Equal(t, 40, resize[0].Rows)
	assert.Len(t, rec.byKind(KindRepaint), 1)
}

func TestAutoDetectTimeoutMessage(t *testing.T) {
	r := newRig(t, nil, func(integ protocol.Integration) protocol.Engine {
		return &fakeEngine{integ: integ}
	}, func(o *Options) {
		o.AutoDetectTimeout = 30 * time.Millisecond
		o.AutoDetectTimeoutMessage = "detect slow"
	})
	r.setup(t)

	out := r.readMaster(t, 300)
	assert.Equal(t, "detect slow", string(out))
}

func TestAutoDetectTimeoutMessage_Disabled(t *testing.T) {
	r := newRig(t, nil, func(integ protocol.Integration) protocol.Engine {
		return &fakeEngine{integ: integ}
	}, func(o *Options) {
		o.AutoDetectTimeout = 30 * time.Millisecond
		o.DisableAutoDetectTimeoutMessage = true
	})
	r.setup(t)

	assert.Empty(t, r.readMaster(t, 200))
}

func TestInput_HangupClosesSession(t *testing.T) {
	rec := newRecorder()
	r := newRig(t, nil, nil, nil)
	r.call(t, func() { r.session.AddObserver(rec) })
	r.setup(t)

	require.NoError(t, r.master.Close())

	waitFor(t, func() bool { return len(rec.byKind(KindClosed)) == 1 })
	r.call(t, func() {
		// Linux reports EIO on a slave whose master is gone
		if rec.byKind(KindClosed)[0].Err != nil {
			assert.True(t, r.session.IsBad())
			assert.Error(t, r.session.Err())
		}
	})
}
