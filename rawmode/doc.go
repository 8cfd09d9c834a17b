// Package rawmode acquires a terminal descriptor and switches its line
// discipline between the captured original state and raw mode.
//
// Every function here is a thin wrapper over a single termios or ioctl call so
// the restore registry can use them from its signal goroutine.
package rawmode
