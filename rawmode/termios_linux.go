//go:build linux

package rawmode

import "golang.org/x/sys/unix"

const (
	ioctlGetAttr = unix.TCGETS
	// TCSETSF is tcsetattr(TCSAFLUSH)
	ioctlSetAttr = unix.TCSETSF
)
