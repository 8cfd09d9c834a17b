package terminal

import (
	"bytes"
	"unicode/utf8"

	"github.com/lixenwraith/rawtty/protocol"
)

// maxCSILen bounds the scan for a CSI terminator; longer runs are treated as garbage
const maxCSILen = 64

// decode parses as many complete sequences from data as possible and returns bytes consumed
// With final set, incomplete trailing sequences are resolved instead of waiting for more data
func (e *Engine) decode(data []byte, final bool) int {
	i := 0
	n := len(data)

	for i < n {
		b := data[i]

		// Fast path: printable ASCII
		if b >= 0x20 && b < 0x7f {
			e.emit(data[i:i+1], protocol.Event{Type: protocol.EventKey, Key: protocol.KeyRune, Rune: rune(b)})
			i++
			continue
		}

		if b == 0x1b {
			consumed, ev := e.parseEscape(data[i:])
			if consumed == 0 {
				if !final {
					return i // Wait for more data
				}
				// Unfinished sequence after the callback delay: ESC was a keypress
				consumed, ev = 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
			}
			e.emit(data[i:i+consumed], ev)
			i += consumed
			continue
		}

		if b < 0x20 {
			e.emit(data[i:i+1], parseControl(b))
			i++
			continue
		}

		if b == 0x7f {
			e.emit(data[i:i+1], protocol.Event{Type: protocol.EventKey, Key: protocol.KeyBackspace})
			i++
			continue
		}

		// UTF-8 multibyte
		if !utf8.FullRune(data[i:]) {
			if !final {
				return i // Incomplete UTF-8, wait for more data
			}
			e.emit(data[i:i+1], protocol.Event{Type: protocol.EventKey, Key: protocol.KeyRune, Rune: utf8.RuneError})
			i++
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		e.emit(data[i:i+size], protocol.Event{Type: protocol.EventKey, Key: protocol.KeyRune, Rune: r})
		i += size
	}
	return i
}

// emit passes a complete sequence through the raw filter, then the event handler
func (e *Engine) emit(seq []byte, ev protocol.Event) {
	if e.rawFilter != nil && e.rawFilter(seq, false) {
		return
	}
	if ev.Type == protocol.EventKey && ev.Key == protocol.KeyNone {
		return // Swallowed unknown sequence
	}
	if e.onEvent != nil {
		ev.Raw = seq
		e.onEvent(ev)
	}
}

// parseEscape parses a sequence starting with ESC, returns 0 on incomplete
func (e *Engine) parseEscape(data []byte) (int, protocol.Event) {
	if len(data) < 2 {
		return 0, protocol.Event{}
	}

	switch {
	case data[1] == 0x1b:
		// ESC ESC -> Alt+Escape
		return 2, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape, Modifiers: protocol.ModAlt}
	case data[1] == '[':
		return e.parseCSI(data)
	case data[1] == 'O':
		return parseSS3(data)
	case data[1] < 0x20:
		ev := parseControl(data[1])
		ev.Modifiers |= protocol.ModAlt
		return 2, ev
	case data[1] < 0x7f:
		return 2, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyRune, Rune: rune(data[1]), Modifiers: protocol.ModAlt}
	}
	// ESC followed by DEL or a high byte: plain Escape, the rest decodes on its own
	return 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
}

// parseCSI parses ESC [ ... without allocation
func (e *Engine) parseCSI(data []byte) (int, protocol.Event) {
	if len(data) < 3 {
		return 0, protocol.Event{}
	}

	// SGR mouse: ESC [ < Btn ; X ; Y M/m
	if data[2] == '<' {
		return parseSGRMouse(data)
	}

	if bytes.HasPrefix(data, csiPasteStart) {
		return e.parsePaste(data)
	}
	if len(data) < len(csiPasteStart) && bytes.HasPrefix(csiPasteStart, data) {
		return 0, protocol.Event{} // Could still become a paste start
	}

	end := 2
	found := false
	for end < len(data) && end < maxCSILen {
		b := data[end]
		end++
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			found = true
			break
		}
		if b < 0x20 || b > 0x7e {
			// Broken sequence: deliver ESC alone, rest decodes as input
			return 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
		}
	}
	if !found {
		if end >= maxCSILen {
			return 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
		}
		return 0, protocol.Event{} // No terminator yet
	}
	last := data[end-1]

	// Primary device attributes reply: ESC [ ? Ps ; ... c
	if data[2] == '?' && last == 'c' {
		e.detected = true
		return end, protocol.Event{Type: protocol.EventCapabilities}
	}

	if key, mod, ok := lookupCSI(data[2:end]); ok {
		return end, protocol.Event{Type: protocol.EventKey, Key: key, Modifiers: mod}
	}

	// Unknown but valid CSI syntax - consume and return KeyNone
	return end, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyNone}
}

// parsePaste consumes a complete bracketed paste, returns 0 until the end marker arrived
func (e *Engine) parsePaste(data []byte) (int, protocol.Event) {
	body := data[len(csiPasteStart):]
	idx := bytes.Index(body, csiPasteEnd)
	if idx < 0 {
		return 0, protocol.Event{}
	}
	consumed := len(csiPasteStart) + idx + len(csiPasteEnd)
	return consumed, protocol.Event{Type: protocol.EventPaste, Text: string(body[:idx])}
}

// parseSS3 parses ESC O x, unknown sequences are consumed to prevent garbage
func parseSS3(data []byte) (int, protocol.Event) {
	if len(data) < 3 {
		return 0, protocol.Event{}
	}
	if key, mod, ok := lookupSS3(data[2:3]); ok {
		return 3, protocol.Event{Type: protocol.EventKey, Key: key, Modifiers: mod}
	}
	return 3, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyNone}
}

// parseControl maps C0 control characters to keys
func parseControl(b byte) protocol.Event {
	switch b {
	case 0x08, 0x7f:
		return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyBackspace}
	case 0x09:
		return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyTab}
	case 0x0a, 0x0d:
		return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEnter}
	case 0x1b:
		return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
	}
	if b >= 0x01 && b <= 0x1a {
		return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyCtrl, Rune: rune('a' + b - 1), Modifiers: protocol.ModCtrl}
	}
	// 0x00 and 0x1c..0x1f: Ctrl+@ Ctrl+\ Ctrl+] Ctrl+^ Ctrl+_
	return protocol.Event{Type: protocol.EventKey, Key: protocol.KeyCtrl, Rune: rune(b + 0x40), Modifiers: protocol.ModCtrl}
}

// parseSGRMouse parses mouse SGR sequences
func parseSGRMouse(data []byte) (int, protocol.Event) {
	end := 3
	for end < len(data) && data[end] != 'M' && data[end] != 'm' {
		end++
		if end >= 32 {
			return 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyEscape}
		}
	}
	if end >= len(data) {
		return 0, protocol.Event{}
	}

	btn, x, y, ok := parseSGRParams(data[3:end])
	if !ok {
		// Malformed but terminated: swallow it
		return end + 1, protocol.Event{Type: protocol.EventKey, Key: protocol.KeyNone}
	}

	ev := protocol.Event{Type: protocol.EventMouse, MouseX: x - 1, MouseY: y - 1}

	// Bits 0-1: button (0=left, 1=middle, 2=right, 3=release)
	// Bit 5 (32): motion, bit 6 (64): scroll
	buttonID := btn & 0x03
	isMotion := btn&32 != 0
	isScroll := btn&64 != 0

	if isScroll {
		if buttonID == 0 {
			ev.MouseBtn = protocol.MouseBtnWheelUp
		} else {
			ev.MouseBtn = protocol.MouseBtnWheelDown
		}
		ev.MouseAction = protocol.MouseActionPress
	} else {
		switch buttonID {
		case 0:
			ev.MouseBtn = protocol.MouseBtnLeft
		case 1:
			ev.MouseBtn = protocol.MouseBtnMiddle
		case 2:
			ev.MouseBtn = protocol.MouseBtnRight
		case 3:
			ev.MouseBtn = protocol.MouseBtnNone
		}

		switch {
		case data[end] == 'm':
			ev.MouseAction = protocol.MouseActionRelease
		case isMotion && ev.MouseBtn != protocol.MouseBtnNone:
			ev.MouseAction = protocol.MouseActionDrag
		case isMotion:
			ev.MouseAction = protocol.MouseActionMove
		default:
			ev.MouseAction = protocol.MouseActionPress
		}
	}

	if btn&4 != 0 {
		ev.Modifiers |= protocol.ModShift
	}
	if btn&8 != 0 {
		ev.Modifiers |= protocol.ModAlt
	}
	if btn&16 != 0 {
		ev.Modifiers |= protocol.ModCtrl
	}

	return end + 1, ev
}

// parseSGRParams extracts btn, x, y from "Btn;X;Y"
func parseSGRParams(data []byte) (btn, x, y int, ok bool) {
	state := 0 // 0=btn, 1=x, 2=y
	val := 0

	for _, b := range data {
		switch {
		case b == ';':
			switch state {
			case 0:
				btn = val
			case 1:
				x = val
			}
			state++
			val = 0
			if state > 2 {
				return 0, 0, 0, false
			}
		case b >= '0' && b <= '9':
			val = val*10 + int(b-'0')
			if val > 9999 { // Sanity limit
				return 0, 0, 0, false
			}
		default:
			return 0, 0, 0, false
		}
	}

	if state != 2 {
		return 0, 0, 0, false
	}
	return btn, x, val, true
}
