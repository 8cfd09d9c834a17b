//go:build unix

package restore

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/rawmode"
)

// DefaultEscape resets rendering state for terminals without an engine-provided sequence
var DefaultEscape = []byte("\x1b[?1000l\x1b[?1002l\x1b[?1003l\x1b[?1006l\x1b[?2004l\x1b[?25h\x1b[?1049l\x1b[?7h\x1b[0m\r\n")

// Crash reporting seams
var (
	crashOutput io.Writer = os.Stderr
	exit                  = os.Exit
)

// HandleCrash is the unified panic handler that restores the terminal and prints the stack trace
func HandleCrash(r any) {
	Default().HandleCrash(r)
}

// HandleCrash restores through this registry, falling back to the controlling terminal
func (reg *Registry) HandleCrash(r any) {
	if r == nil {
		return
	}

	if !reg.Restore() {
		resetControllingTerminal()
	}

	// Terminal output processing may still be off, so lines end with \r\n
	fmt.Fprintf(crashOutput, "\r\n\x1b[31mCRASH DETECTED: %v\x1b[0m\r\n", r)
	fmt.Fprintf(crashOutput, "Stack Trace:\r\n%s\r\n", debug.Stack())
	if f, ok := crashOutput.(*os.File); ok {
		f.Sync()
	}

	exit(1)
}

// Go runs a function in a new goroutine with panic recovery.
// Use this instead of the 'go' keyword to ensure terminal cleanup on crash.
func Go(fn func()) {
	Default().Go(fn)
}

// Go is the registry-bound form of the package-level Go
func (reg *Registry) Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reg.HandleCrash(r)
			}
		}()
		fn()
	}()
}

// resetControllingTerminal attempts to restore the controlling terminal to cooked mode
// Best-effort for crash recovery; errors ignored
func resetControllingTerminal() {
	fd, err := unix.Open(rawmode.ControllingTerminal, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)

	if a, err := rawmode.CaptureAttributes(fd); err == nil {
		a.Lflag |= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
		a.Iflag |= unix.ICRNL
		a.Oflag |= unix.OPOST | unix.ONLCR
		rawmode.SetAttributes(fd, &a)
	}
	unix.Write(fd, DefaultEscape)
}
