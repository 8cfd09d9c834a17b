package session

import "github.com/lixenwraith/rawtty/protocol"

// Kind identifies what an Event carries
type Kind uint8

const (
	KindNative             Kind = iota // Decoded engine event in Native
	KindRawSequence                    // Complete input sequence in Raw; consuming it suppresses decoding
	KindRawSequencePending             // Undecoded bytes left in the engine after a read
	KindResize                         // Cols and Rows hold the new size
	KindRepaint                        // Full repaint was forced
	KindClosed                         // Input side ended, Err set on failure
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindRawSequence:
		return "raw_sequence"
	case KindRawSequencePending:
		return "raw_sequence_pending"
	case KindResize:
		return "resize"
	case KindRepaint:
		return "repaint"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to observers on the loop goroutine
// Raw aliases engine memory and is only valid during Observe
type Event struct {
	Kind       Kind
	Native     protocol.Event
	Raw        []byte
	Overflow   bool
	Cols, Rows int
	Err        error
}

// Observer receives session events; returning true consumes the event
type Observer interface {
	Observe(ev Event) bool
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Event) bool

func (f ObserverFunc) Observe(ev Event) bool {
	return f(ev)
}

// AddObserver appends o to the chain, observers run in registration order
func (s *Session) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.observers = append(s.observers, o)
}

// dispatch walks the chain until an observer consumes the event
func (s *Session) dispatch(ev Event) bool {
	for _, o := range s.observers {
		if o.Observe(ev) {
			return true
		}
	}
	return false
}
