//go:build unix

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds each poll so Stop is noticed promptly
const pollTimeoutMs = 100

// Watch notifies the loop when a descriptor becomes readable
type Watch struct {
	loop *Loop
	fd   int
	fn   func()

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// WatchReadable starts polling fd; fn runs on the loop each time fd is readable
// The next poll waits until fn returned, so a level-triggered fd does not flood the loop
func (l *Loop) WatchReadable(fd int, fn func()) *Watch {
	w := &Watch{
		loop:   l,
		fd:     fd,
		fn:     fn,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go w.pollLoop()
	return w
}

// Stop ends the watch without waiting; safe from within fn
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Done is closed once the poll goroutine exited
func (w *Watch) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watch) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Watch) pollLoop() {
	defer close(w.doneCh)

	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	handled := make(chan struct{}, 1)

	for {
		if w.stopped() || w.loop.Stopped() {
			return
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			continue // Timeout
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			// fd closed under us
			return
		}

		if !w.loop.Post(func() {
			defer func() { handled <- struct{}{} }()
			if w.stopped() {
				return
			}
			w.fn()
		}) {
			return
		}

		select {
		case <-handled:
		case <-w.stopCh:
			return
		case <-w.loop.quit:
			return
		}
	}
}
