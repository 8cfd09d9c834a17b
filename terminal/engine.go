package terminal

import (
	"github.com/lixenwraith/rawtty/protocol"
)

// maxPendingInput bounds buffered undecoded input; beyond it the buffer is handed to the raw filter as overflow and dropped
const maxPendingInput = 64 * 1024

// Options selects the terminal modes entered when the engine is created
type Options struct {
	AltScreen       bool
	HideCursor      bool
	DisableAutoWrap bool
	BracketedPaste  bool
	Mouse           protocol.MouseMode
}

// DefaultOptions returns the full-screen defaults
func DefaultOptions() Options {
	return Options{
		AltScreen:       true,
		HideCursor:      true,
		DisableAutoWrap: true,
		BracketedPaste:  true,
		Mouse:           protocol.MouseModeClick,
	}
}

// Engine is the reference ANSI protocol engine
type Engine struct {
	integ protocol.Integration
	opts  Options

	inbuf     []byte
	onEvent   protocol.EventHandler
	rawFilter protocol.RawFilter

	detecting bool
	detected  bool

	cols, rows int
	mouseMode  protocol.MouseMode

	restoreSeq []byte
	scratch    []byte
	freed      bool
}

var _ protocol.Engine = (*Engine)(nil)

// New returns a factory producing engines configured with opts
func New(opts Options) protocol.Factory {
	return func(integ protocol.Integration) protocol.Engine {
		return NewEngine(integ, opts)
	}
}

// NewEngine creates an engine bound to integ and writes the mode setup sequences
func NewEngine(integ protocol.Integration, opts Options) *Engine {
	e := &Engine{
		integ:      integ,
		opts:       opts,
		cols:       80,
		rows:       24,
		restoreSeq: buildRestoreSequence(),
	}

	if opts.AltScreen {
		e.write(csiAltScreenEnter)
	}
	if opts.HideCursor {
		e.write(csiCursorHide)
	}
	if opts.DisableAutoWrap {
		e.write(csiAutoWrapOff)
	}
	if opts.BracketedPaste {
		e.write(csiPasteOn)
	}
	e.SetMouseMode(opts.Mouse)
	e.write(csiClear)
	return e
}

// buildRestoreSequence undoes every mode the engine may enable, regardless of what is active
func buildRestoreSequence() []byte {
	var seq []byte
	seq = append(seq, csiMouseMotionOff...)
	seq = append(seq, csiMouseDragOff...)
	seq = append(seq, csiMouseClickOff...)
	seq = append(seq, csiMouseSGROff...)
	seq = append(seq, csiPasteOff...)
	seq = append(seq, csiCursorShow...)
	seq = append(seq, csiAltScreenExit...)
	seq = append(seq, csiAutoWrapOn...)
	seq = append(seq, csiSGR0...)
	return seq
}

func (e *Engine) write(p []byte) {
	if e.freed || e.integ.IsBad() {
		return
	}
	e.integ.Write(p)
}

// --- Input ---

func (e *Engine) AddInputData(p []byte) {
	e.inbuf = append(e.inbuf, p...)
	n := e.decode(e.inbuf, false)
	e.consume(n)

	if len(e.inbuf) > maxPendingInput {
		if e.rawFilter != nil {
			e.rawFilter(e.inbuf, true)
		}
		e.inbuf = e.inbuf[:0]
		return
	}
	if len(e.inbuf) > 0 {
		e.integ.RequestCallback()
	}
}

func (e *Engine) PeekInputBuffer() []byte {
	return e.inbuf
}

// Callback resolves buffered partial input, a lone ESC becomes the Escape key
func (e *Engine) Callback() {
	if len(e.inbuf) == 0 {
		return
	}
	n := e.decode(e.inbuf, true)
	e.consume(n)
}

// consume drops n decoded bytes, keeping the remainder at the buffer start
func (e *Engine) consume(n int) {
	if n == 0 {
		return
	}
	rest := copy(e.inbuf, e.inbuf[n:])
	e.inbuf = e.inbuf[:rest]
}

func (e *Engine) SetEventHandler(h protocol.EventHandler) {
	e.onEvent = h
}

func (e *Engine) SetRawInputFilter(f protocol.RawFilter) {
	e.rawFilter = f
}

// --- Detection ---

// AutoDetect sends a primary device attributes query; the reply finishes detection
func (e *Engine) AutoDetect() {
	if e.detecting || e.detected {
		return
	}
	e.detecting = true
	e.write(csiDA1)
	e.Flush()
}

func (e *Engine) AutoDetectFinished() bool {
	return e.detected
}

// --- Geometry and repaint ---

func (e *Engine) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	e.cols, e.rows = cols, rows
}

func (e *Engine) Size() (int, int) {
	return e.cols, e.rows
}

func (e *Engine) ForceRepaint() {
	e.write(csiClear)
	e.Flush()
}

// --- Teardown ---

func (e *Engine) RestoreSequence() []byte {
	return e.restoreSeq
}

func (e *Engine) ResetAttributes() {
	e.write(csiSGR0)
}

// FreeWithRestore writes the restore sequence and releases the integration once
func (e *Engine) FreeWithRestore() {
	if e.freed {
		return
	}
	e.write(e.restoreSeq)
	e.Flush()
	e.freed = true
	e.mouseMode = protocol.MouseModeNone
	e.integ.Free()
}

// --- Output helpers ---

// SetMouseMode switches mouse reporting, emitting only the mode transitions
func (e *Engine) SetMouseMode(mode protocol.MouseMode) {
	old := e.mouseMode
	e.mouseMode = mode

	// Disable modes no longer needed (reverse order of enable)
	if old&protocol.MouseModeMotion != 0 && mode&protocol.MouseModeMotion == 0 {
		e.write(csiMouseMotionOff)
	}
	if old&protocol.MouseModeDrag != 0 && mode&protocol.MouseModeDrag == 0 {
		e.write(csiMouseDragOff)
	}
	if old&protocol.MouseModeClick != 0 && mode&protocol.MouseModeClick == 0 {
		e.write(csiMouseClickOff)
	}
	if mode == protocol.MouseModeNone && old != protocol.MouseModeNone {
		e.write(csiMouseSGROff)
	}

	if mode != protocol.MouseModeNone && old == protocol.MouseModeNone {
		e.write(csiMouseSGROn)
	}
	if mode&protocol.MouseModeClick != 0 && old&protocol.MouseModeClick == 0 {
		e.write(csiMouseClickOn)
	}
	if mode&protocol.MouseModeDrag != 0 && old&protocol.MouseModeDrag == 0 {
		e.write(csiMouseDragOn)
	}
	if mode&protocol.MouseModeMotion != 0 && old&protocol.MouseModeMotion == 0 {
		e.write(csiMouseMotionOn)
	}
}

func (e *Engine) MouseMode() protocol.MouseMode {
	return e.mouseMode
}

// Print writes text at the cursor position
func (e *Engine) Print(s string) {
	e.scratch = append(e.scratch[:0], s...)
	e.write(e.scratch)
}

// MoveCursor positions the cursor, coordinates are 0-indexed
func (e *Engine) MoveCursor(x, y int) {
	e.scratch = appendCursorPos(e.scratch[:0], x, y)
	e.write(e.scratch)
}

func (e *Engine) ClearScreen() {
	e.write(csiClear)
}

func (e *Engine) ShowCursor(visible bool) {
	if visible {
		e.write(csiCursorShow)
	} else {
		e.write(csiCursorHide)
	}
}

func (e *Engine) Flush() {
	if e.freed || e.integ.IsBad() {
		return
	}
	e.integ.Flush()
}
