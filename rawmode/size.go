//go:build unix

package rawmode

import "golang.org/x/sys/unix"

const (
	DefaultCols = 80
	DefaultRows = 24
)

// QueryWindowSize returns the kernel's idea of the terminal dimensions
func QueryWindowSize(fd int) (cols, rows int, err error) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Col), int(ws.Row), nil
}

// WindowSize returns the terminal size for fd, 80x24 if unavailable
func WindowSize(fd int) (int, int) {
	cols, rows, err := QueryWindowSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return DefaultCols, DefaultRows // Fallback
	}
	return cols, rows
}
