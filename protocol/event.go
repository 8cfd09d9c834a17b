package protocol

// EventType distinguishes decoded event categories
type EventType uint8

const (
	EventKey EventType = iota
	EventMouse
	EventPaste
	EventCapabilities // auto-detection finished
)

// Event is a decoded terminal input event
type Event struct {
	Type      EventType
	Key       Key
	Rune      rune
	Modifiers Modifier

	// EventPaste payload, bracketed paste markers stripped
	Text string

	// Mouse fields, 0-indexed cells
	MouseX      int
	MouseY      int
	MouseBtn    MouseButton
	MouseAction MouseAction

	// Raw holds the bytes the event was decoded from
	Raw []byte
}
