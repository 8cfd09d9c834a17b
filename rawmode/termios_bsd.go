//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package rawmode

import "golang.org/x/sys/unix"

const (
	ioctlGetAttr = unix.TIOCGETA
	// TIOCSETAF is tcsetattr(TCSAFLUSH)
	ioctlSetAttr = unix.TIOCSETAF
)
