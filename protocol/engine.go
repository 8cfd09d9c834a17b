package protocol

// Integration is the callback table a session provides to its engine
type Integration interface {
	// Free releases session resources owned on behalf of the engine
	Free()
	// Write queues bytes for the terminal
	Write(p []byte)
	// Flush transmits queued bytes
	Flush()
	// IsBad reports that the terminal is unusable; polled by the engine
	IsBad() bool
	// RequestCallback asks for a delayed Engine.Callback with no new input
	RequestCallback()
}

// RawFilter observes each complete input sequence before decoding
// Returning true consumes the sequence and suppresses its event
type RawFilter func(seq []byte, overflow bool) bool

// EventHandler receives decoded events synchronously during input dispatch
type EventHandler func(ev Event)

// Engine turns terminal bytes into events and owns terminal-side state
type Engine interface {
	AddInputData(p []byte)
	// PeekInputBuffer returns accumulated bytes not yet decoded
	// The slice is only valid until the next engine call
	PeekInputBuffer() []byte
	// Callback resumes processing of buffered partial input
	Callback()

	SetEventHandler(h EventHandler)
	SetRawInputFilter(f RawFilter)

	// AutoDetect starts capability detection; AutoDetectFinished reports completion
	AutoDetect()
	AutoDetectFinished() bool

	Resize(cols, rows int)
	Size() (cols, rows int)
	ForceRepaint()

	// RestoreSequence returns bytes that return the terminal to its default rendering state
	// The result must never change after the engine is created
	RestoreSequence() []byte
	ResetAttributes()
	// FreeWithRestore writes the restore sequence, flushes and calls Integration.Free
	FreeWithRestore()
}

// Factory creates an engine bound to integ
type Factory func(integ Integration) Engine
