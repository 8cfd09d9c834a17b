// @focus: #sys { io } #input { keys }
package terminal

import "github.com/lixenwraith/rawtty/protocol"

// escapeSequence maps the bytes after the introducer to a key
type escapeSequence struct {
	seq string
	key protocol.Key
	mod protocol.Modifier
}

// Known CSI sequences (ESC [ ...)
var csiSequences = []escapeSequence{
	{"A", protocol.KeyUp, protocol.ModNone},
	{"B", protocol.KeyDown, protocol.ModNone},
	{"C", protocol.KeyRight, protocol.ModNone},
	{"D", protocol.KeyLeft, protocol.ModNone},
	{"Z", protocol.KeyBacktab, protocol.ModShift},

	{"H", protocol.KeyHome, protocol.ModNone},
	{"F", protocol.KeyEnd, protocol.ModNone},
	{"1~", protocol.KeyHome, protocol.ModNone},
	{"4~", protocol.KeyEnd, protocol.ModNone},
	{"5~", protocol.KeyPageUp, protocol.ModNone},
	{"6~", protocol.KeyPageDown, protocol.ModNone},
	{"2~", protocol.KeyInsert, protocol.ModNone},
	{"3~", protocol.KeyDelete, protocol.ModNone},

	// Function keys (xterm)
	{"11~", protocol.KeyF1, protocol.ModNone},
	{"12~", protocol.KeyF2, protocol.ModNone},
	{"13~", protocol.KeyF3, protocol.ModNone},
	{"14~", protocol.KeyF4, protocol.ModNone},
	{"15~", protocol.KeyF5, protocol.ModNone},
	{"17~", protocol.KeyF6, protocol.ModNone},
	{"18~", protocol.KeyF7, protocol.ModNone},
	{"19~", protocol.KeyF8, protocol.ModNone},
	{"20~", protocol.KeyF9, protocol.ModNone},
	{"21~", protocol.KeyF10, protocol.ModNone},
	{"23~", protocol.KeyF11, protocol.ModNone},
	{"24~", protocol.KeyF12, protocol.ModNone},

	// Linux console
	{"[A", protocol.KeyF1, protocol.ModNone},
	{"[B", protocol.KeyF2, protocol.ModNone},
	{"[C", protocol.KeyF3, protocol.ModNone},
	{"[D", protocol.KeyF4, protocol.ModNone},
	{"[E", protocol.KeyF5, protocol.ModNone},
}

// SS3 sequences (ESC O ...)
var ss3Sequences = []escapeSequence{
	{"A", protocol.KeyUp, protocol.ModNone},
	{"B", protocol.KeyDown, protocol.ModNone},
	{"C", protocol.KeyRight, protocol.ModNone},
	{"D", protocol.KeyLeft, protocol.ModNone},
	{"H", protocol.KeyHome, protocol.ModNone},
	{"F", protocol.KeyEnd, protocol.ModNone},
	{"P", protocol.KeyF1, protocol.ModNone},
	{"Q", protocol.KeyF2, protocol.ModNone},
	{"R", protocol.KeyF3, protocol.ModNone},
	{"S", protocol.KeyF4, protocol.ModNone},
}

var csiMap = buildSequenceMap(csiSequences)
var ss3Map = buildSequenceMap(ss3Sequences)

func buildSequenceMap(seqs []escapeSequence) map[string]escapeSequence {
	m := make(map[string]escapeSequence, len(seqs))
	for _, s := range seqs {
		m[s.seq] = s
	}
	// xterm modifier forms for cursor keys: ESC [ 1 ; mod X
	for _, s := range seqs {
		if len(s.seq) != 1 || s.seq[0] < 'A' || s.seq[0] > 'H' {
			continue
		}
		for param, mod := range xtermModifiers {
			m["1;"+param+s.seq] = escapeSequence{seq: "1;" + param + s.seq, key: s.key, mod: mod}
		}
	}
	return m
}

// xtermModifiers maps the CSI modifier parameter to flags (value-1 is a bitmask)
var xtermModifiers = map[string]protocol.Modifier{
	"2": protocol.ModShift,
	"3": protocol.ModAlt,
	"4": protocol.ModShift | protocol.ModAlt,
	"5": protocol.ModCtrl,
	"6": protocol.ModCtrl | protocol.ModShift,
	"7": protocol.ModCtrl | protocol.ModAlt,
	"8": protocol.ModCtrl | protocol.ModAlt | protocol.ModShift,
}

// lookupCSI performs zero-alloc map lookup, the string([]byte) conversion in a map index does not allocate
func lookupCSI(seq []byte) (protocol.Key, protocol.Modifier, bool) {
	if s, ok := csiMap[string(seq)]; ok {
		return s.key, s.mod, true
	}
	return protocol.KeyNone, protocol.ModNone, false
}

func lookupSS3(seq []byte) (protocol.Key, protocol.Modifier, bool) {
	if s, ok := ss3Map[string(seq)]; ok {
		return s.key, s.mod, true
	}
	return protocol.KeyNone, protocol.ModNone, false
}
