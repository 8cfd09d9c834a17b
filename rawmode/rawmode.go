//go:build unix

package rawmode

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Attributes is a termios snapshot. Comparable with ==.
type Attributes unix.Termios

// Capability selects which signal-generating characters stay active in raw mode
type Capability uint8

const (
	AllowInterrupt Capability = 1 << iota
	AllowQuit
	AllowSuspend

	CapabilityNone Capability = 0
)

// CaptureAttributes snapshots the line discipline of fd
func CaptureAttributes(fd int) (Attributes, error) {
	t, err := unix.IoctlGetTermios(fd, ioctlGetAttr)
	if err != nil {
		return Attributes{}, fmt.Errorf("get terminal attributes: %w", err)
	}
	return Attributes(*t), nil
}

// SetAttributes applies a, discarding pending input (TCSAFLUSH)
// Safe for the restore registry's signal goroutine: one ioctl, no allocation
func SetAttributes(fd int, a *Attributes) error {
	return unix.IoctlSetTermios(fd, ioctlSetAttr, (*unix.Termios)(a))
}

// RestoreAttributes reverts fd to a previously captured snapshot
func RestoreAttributes(fd int, a Attributes) error {
	if err := SetAttributes(fd, &a); err != nil {
		return fmt.Errorf("restore terminal attributes: %w", err)
	}
	return nil
}

// ApplyRawMode switches fd into raw mode starting from its current attributes
func ApplyRawMode(fd int, caps Capability) error {
	a, err := CaptureAttributes(fd)
	if err != nil {
		return err
	}
	makeRaw(&a, caps)
	if err := SetAttributes(fd, &a); err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	return nil
}

// makeRaw edits a in place
func makeRaw(a *Attributes, caps Capability) {
	a.Iflag |= unix.IGNBRK | unix.IGNPAR
	a.Iflag &^= unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	a.Oflag &^= unix.OPOST | unix.ONLCR | unix.OCRNL | unix.ONOCR | unix.ONLRET
	a.Lflag &^= unix.ICANON | unix.IEXTEN | unix.ECHO
	a.Cc[unix.VMIN] = 1
	a.Cc[unix.VTIME] = 0

	if caps&(AllowInterrupt|AllowQuit|AllowSuspend) == 0 {
		a.Lflag &^= unix.ISIG
		return
	}
	// ISIG stays on, disable only the characters that are not allowed
	if caps&AllowInterrupt == 0 {
		a.Cc[unix.VINTR] = 0
	}
	if caps&AllowQuit == 0 {
		a.Cc[unix.VQUIT] = 0
	}
	if caps&AllowSuspend == 0 {
		a.Cc[unix.VSUSP] = 0
	}
}
