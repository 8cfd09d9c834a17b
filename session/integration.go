package session

import "github.com/lixenwraith/rawtty/protocol"

// integration is the fixed callback table handed to the engine
type integration struct {
	s     *Session
	freed bool
}

var _ protocol.Integration = (*integration)(nil)

// Free detaches the engine; the descriptor is closed by Teardown after attributes are restored
func (i *integration) Free() {
	i.freed = true
}

func (i *integration) Write(p []byte) {
	if i.freed {
		return
	}
	i.s.stream.Write(p)
}

func (i *integration) Flush() {
	if i.freed {
		return
	}
	i.s.stream.Flush()
}

func (i *integration) IsBad() bool {
	return i.freed || i.s.stream.IsBad()
}

func (i *integration) RequestCallback() {
	if i.freed {
		return
	}
	i.s.requestCallback()
}
