// @focus: #terminal { ansi }
package terminal

// Pre-allocated ANSI sequence fragments
var (
	csiClear = []byte("\x1b[2J\x1b[H")
	csiSGR0  = []byte("\x1b[0m")

	// Device attributes probe, answered with ESC [ ? ... c
	csiDA1 = []byte("\x1b[c")

	// Cursor control
	csiCursorHide = []byte("\x1b[?25l")
	csiCursorShow = []byte("\x1b[?25h")

	// Screen modes
	csiAltScreenEnter = []byte("\x1b[?1049h")
	csiAltScreenExit  = []byte("\x1b[?1049l")
	// DECAWM: ?7l keeps the cursor at the right edge instead of scrolling from the bottom-right cell
	csiAutoWrapOn  = []byte("\x1b[?7h")
	csiAutoWrapOff = []byte("\x1b[?7l")

	// Bracketed paste
	csiPasteOn    = []byte("\x1b[?2004h")
	csiPasteOff   = []byte("\x1b[?2004l")
	csiPasteStart = []byte("\x1b[200~")
	csiPasteEnd   = []byte("\x1b[201~")

	// Mouse reporting
	csiMouseClickOn   = []byte("\x1b[?1000h")
	csiMouseClickOff  = []byte("\x1b[?1000l")
	csiMouseDragOn    = []byte("\x1b[?1002h")
	csiMouseDragOff   = []byte("\x1b[?1002l")
	csiMouseMotionOn  = []byte("\x1b[?1003h")
	csiMouseMotionOff = []byte("\x1b[?1003l")
	csiMouseSGROn     = []byte("\x1b[?1006h")
	csiMouseSGROff    = []byte("\x1b[?1006l")
)

// appendInt appends a non-negative decimal without allocation
func appendInt(b []byte, n int) []byte {
	if n < 0 {
		n = 0
	}
	if n < 10 {
		return append(b, byte(n)+'0')
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte(n%10) + '0'
		n /= 10
	}
	return append(b, buf[i:]...)
}

// appendCursorPos appends a cursor positioning sequence (0-indexed input)
func appendCursorPos(b []byte, x, y int) []byte {
	b = append(b, "\x1b["...)
	b = appendInt(b, y+1)
	b = append(b, ';')
	b = appendInt(b, x+1)
	return append(b, 'H')
}
