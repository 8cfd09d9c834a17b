//go:build unix

package termio

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/metrics"
)

const (
	// DefaultFlushThreshold triggers an automatic flush once exceeded
	DefaultFlushThreshold = 512
	// ChunkSize caps bytes handled per readable event
	ChunkSize = 100
)

// ErrFatalIO marks a non-retryable device error
var ErrFatalIO = errors.New("fatal terminal i/o error")

// Options configures a Stream
type Options struct {
	FlushThreshold int
	Metrics        *metrics.Collector
	// OnFatal is called once, when the stream turns bad
	OnFatal func(err error)
}

// Stream owns the buffered output and bad state of one terminal descriptor
// Not safe for concurrent use; the session drives it from the reactor goroutine
type Stream struct {
	fd        int
	buf       []byte
	threshold int
	bad       bool
	err       error

	metrics *metrics.Collector
	onFatal func(error)

	// Syscall seams, replaced in tests
	write func(fd int, p []byte) (int, error)
	read  func(fd int, p []byte) (int, error)
}

// NewStream wraps fd
func NewStream(fd int, opts Options) *Stream {
	threshold := opts.FlushThreshold
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Stream{
		fd:        fd,
		buf:       make([]byte, 0, threshold*2),
		threshold: threshold,
		metrics:   opts.Metrics,
		onFatal:   opts.OnFatal,
		write:     unix.Write,
		read:      unix.Read,
	}
}

// Fd returns the wrapped descriptor
func (s *Stream) Fd() int {
	return s.fd
}

// IsBad reports whether a fatal error occurred
func (s *Stream) IsBad() bool {
	return s.bad
}

// Err returns the fatal error, nil while healthy
func (s *Stream) Err() error {
	return s.err
}

// Buffered returns the number of bytes waiting for Flush
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// Write appends p to the output buffer, flushing once the threshold is exceeded
func (s *Stream) Write(p []byte) {
	if s.bad {
		return
	}
	s.buf = append(s.buf, p...)
	if len(s.buf) > s.threshold {
		s.Flush()
	}
}

// WriteString is Write for strings
func (s *Stream) WriteString(str string) {
	if s.bad {
		return
	}
	s.buf = append(s.buf, str...)
	if len(s.buf) > s.threshold {
		s.Flush()
	}
}

// Flush blocks until the whole buffer is written or the stream turns bad
func (s *Stream) Flush() {
	if s.bad {
		s.buf = s.buf[:0]
		return
	}
	if len(s.buf) == 0 {
		return
	}

	written := 0
	for written < len(s.buf) {
		n, err := s.write(s.fd, s.buf[written:])
		if n > 0 {
			written += n
			s.metrics.AddWritten(n)
		}
		if err == nil {
			if n <= 0 {
				s.fail("write", io.ErrShortWrite)
				return
			}
			continue
		}
		if err == unix.EINTR {
			s.metrics.IncInterrupted()
			continue
		}
		// EAGAIN/EWOULDBLOCK: non-blocking mode is not supported
		// EIO/ENOSPC/EBADF/EINVAL/EPIPE and anything else: device gone bad
		s.fail("write", err)
		return
	}

	s.buf = s.buf[:0]
	s.metrics.IncFlush()
}

// ReadChunk performs one bounded read into p (at most ChunkSize bytes)
// Returns 0, nil when the call was interrupted or would block
func (s *Stream) ReadChunk(p []byte) (int, error) {
	if s.bad {
		return 0, s.err
	}
	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}

	n, err := s.read(s.fd, p)
	switch {
	case err == unix.EINTR || err == unix.EAGAIN:
		return 0, nil
	case err != nil:
		s.fail("read", err)
		return 0, s.err
	case n == 0:
		return 0, io.EOF
	}
	s.metrics.AddInput(n)
	return n, nil
}

// fail marks the stream bad; no further syscalls are issued
func (s *Stream) fail(op string, err error) {
	s.bad = true
	s.err = fmt.Errorf("%w: %s fd %d: %v", ErrFatalIO, op, s.fd, err)
	s.buf = s.buf[:0]

	if op == "read" {
		s.metrics.IncFatalRead()
	} else {
		s.metrics.IncFatalWrite()
	}
	if s.onFatal != nil {
		s.onFatal(s.err)
	}
}
