//go:build unix

package restore

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/rawmode"
)

// Signal classes handled by the registry
var (
	terminationSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM}

	// Only asynchronously delivered instances reach the handler; synchronous faults surface as panics
	crashSignals = []os.Signal{syscall.SIGABRT, syscall.SIGBUS, syscall.SIGFPE, syscall.SIGILL, syscall.SIGSEGV, syscall.SIGSYS, syscall.SIGTRAP}
	stopSignals  = []os.Signal{syscall.SIGTSTP, syscall.SIGTTIN, syscall.SIGTTOU}
	resumeSignal = syscall.SIGCONT
	resizeSignal = syscall.SIGWINCH
)

// Seams over os/signal
var (
	signalNotify = signal.Notify
	signalReset  = signal.Reset
	signalStop   = signal.Stop
)

func allSignals() []os.Signal {
	sigs := make([]os.Signal, 0, len(terminationSignals)+len(crashSignals)+len(stopSignals)+2)
	sigs = append(sigs, terminationSignals...)
	sigs = append(sigs, crashSignals...)
	sigs = append(sigs, stopSignals...)
	return append(sigs, resumeSignal, resizeSignal)
}

type signalClass uint8

const (
	classOther signalClass = iota
	classTerminate
	classStop
	classResume
	classResize
)

func classify(sig os.Signal) signalClass {
	switch sig {
	case resumeSignal:
		return classResume
	case resizeSignal:
		return classResize
	}
	for _, s := range stopSignals {
		if s == sig {
			return classStop
		}
	}
	for _, s := range terminationSignals {
		if s == sig {
			return classTerminate
		}
	}
	for _, s := range crashSignals {
		if s == sig {
			return classTerminate
		}
	}
	return classOther
}

// signalLoop is the only goroutine that reacts to OS signals
func (r *Registry) signalLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case sig := <-r.sigCh:
			r.handle(sig)
		}
	}
}

// handle runs one signal; restricted to registry data and termios/write syscalls
func (r *Registry) handle(sig os.Signal) {
	switch classify(sig) {
	case classTerminate:
		r.Restore()
		r.unsubscribe(sig)
		r.raise(sig)

	case classStop:
		if r.active.Load() {
			a, err := rawmode.CaptureAttributes(r.fd)
			r.preStop, r.preStopValid = a, err == nil
			r.Restore()
		}
		// Default disposition must apply for the re-raise to stop the process
		r.unsubscribe(stopSignals...)
		r.raise(sig)

	case classResume:
		// Raw mode is back before the deferred repaint can run
		if r.preStopValid && r.active.Load() {
			rawmode.SetAttributes(r.fd, &r.preStop)
		}
		r.preStopValid = false
		r.subscribe(stopSignals...)
		r.record(&r.resumed)

	case classResize:
		r.record(&r.resized)
	}
}

// raiseSelf delivers sig to this process with the handler already reset
func raiseSelf(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	unix.Kill(unix.Getpid(), s)
}
