// Package restore holds the process-wide terminal restore state.
//
// The first session to complete setup claims the registry. From then on a
// dedicated signal goroutine restores the claimed descriptor's original line
// discipline and writes the published escape sequence on termination, crash,
// and job-control stop signals, reapplies raw mode on resume, and forwards
// resume and resize notifications to the claimant's reactor.
//
// The signal goroutine touches only the registry's plain data and issues raw
// termios and write syscalls. It never calls into a session, engine, or loop.
package restore
