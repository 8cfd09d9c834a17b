//go:build unix

package rawmode

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ControllingTerminal is the fallback device opened when no candidate fd is a terminal
const ControllingTerminal = "/dev/tty"

// ErrNoTerminalAvailable is returned when neither a candidate fd nor the fallback path is a terminal
var ErrNoTerminalAvailable = errors.New("no terminal available")

// DefaultCandidates are stdin, stdout and stderr in probe order
var DefaultCandidates = []int{0, 1, 2}

// Device is an acquired terminal descriptor
type Device struct {
	Fd int
	// Owned is set only when Acquire opened the descriptor itself
	Owned bool
	Path  string
}

// Acquire returns the first candidate fd that refers to a terminal, falling back to opening path.
// An empty path disables the fallback.
func Acquire(candidates []int, path string) (*Device, error) {
	for _, fd := range candidates {
		if term.IsTerminal(fd) {
			return &Device{Fd: fd}, nil
		}
	}

	if path == "" {
		return nil, ErrNoTerminalAvailable
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrNoTerminalAvailable, path, err)
	}
	if !term.IsTerminal(fd) {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is not a terminal", ErrNoTerminalAvailable, path)
	}
	return &Device{Fd: fd, Owned: true, Path: path}, nil
}

// Release closes the descriptor if Acquire opened it. Borrowed descriptors are left alone.
func (d *Device) Release() error {
	if d == nil || !d.Owned || d.Fd < 0 {
		return nil
	}
	err := unix.Close(d.Fd)
	d.Fd = -1
	return err
}

// Available reports whether Acquire with default arguments would likely succeed
func Available() bool {
	for _, fd := range DefaultCandidates {
		if term.IsTerminal(fd) {
			return true
		}
	}
	fd, err := unix.Open(ControllingTerminal, unix.O_RDONLY|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}
