package protocol

import "fmt"

// Key represents a parsed input key
type Key uint16

const (
	KeyNone Key = iota
	KeyRune     // Printable character (check Event.Rune)

	KeyEscape
	KeyEnter
	KeyTab
	KeyBacktab
	KeyBackspace
	KeyDelete

	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyInsert

	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12

	// KeyCtrl carries the letter in Event.Rune ('a'..'z' or one of "@\\]^_")
	KeyCtrl
)

// Modifier flags
type Modifier uint8

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1 << 0
	ModAlt   Modifier = 1 << 1
	ModCtrl  Modifier = 1 << 2
)

var keyNames = map[Key]string{
	KeyNone:      "None",
	KeyRune:      "Rune",
	KeyEscape:    "Escape",
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyBacktab:   "Backtab",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyPageUp:    "PageUp",
	KeyPageDown:  "PageDown",
	KeyInsert:    "Insert",
	KeyCtrl:      "Ctrl",
}

func (k Key) String() string {
	if k >= KeyF1 && k <= KeyF12 {
		return fmt.Sprintf("F%d", int(k-KeyF1)+1)
	}
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Key(%d)", uint16(k))
}

// String renders modifiers as "Ctrl+Alt+Shift+" style prefix
func (m Modifier) String() string {
	s := ""
	if m&ModCtrl != 0 {
		s += "Ctrl+"
	}
	if m&ModAlt != 0 {
		s += "Alt+"
	}
	if m&ModShift != 0 {
		s += "Shift+"
	}
	return s
}

// String returns a human-readable key description, e.g. "Alt+x" or "Ctrl+c"
func (ev Event) String() string {
	switch ev.Type {
	case EventMouse:
		return fmt.Sprintf("%sMouse%s%s(%d,%d)", ev.Modifiers, ev.MouseBtn, ev.MouseAction, ev.MouseX, ev.MouseY)
	case EventPaste:
		return fmt.Sprintf("Paste(%q)", ev.Text)
	case EventCapabilities:
		return "Capabilities"
	}
	switch ev.Key {
	case KeyRune:
		return ev.Modifiers.String() + string(ev.Rune)
	case KeyCtrl:
		return (ev.Modifiers | ModCtrl).String() + string(ev.Rune)
	}
	return ev.Modifiers.String() + ev.Key.String()
}
