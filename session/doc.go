// Package session ties a terminal device, its raw line discipline, buffered
// I/O, the restore registry, and a protocol engine into one lifecycle.
//
// All Session methods run on the reactor loop goroutine that was passed to
// New. Callers outside the loop use Loop.Call, or the Service wrapper which
// does so for them.
package session
