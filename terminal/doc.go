// @focus: #sys { term }
// Package terminal is the ANSI protocol engine used by rawtty sessions.
//
// Features:
//   - Raw byte stream decoding with escape sequence handling (CSI, SS3, Alt)
//   - SGR mouse reporting and bracketed paste
//   - Primary device attributes (DA1) probe for capability auto-detection
//   - Lone ESC disambiguation through the session's deferred callback
//   - Alternate screen, cursor and mouse mode control sequences
//
// This package bypasses terminfo/termcap entirely, emitting direct ANSI sequences.
// Target environments: Linux, macOS, BSDs with xterm-compatible terminals.
package terminal
