//go:build unix

package termio

import (
	"bytes"
	"io"
	"testing"

	"github.com/creack/pty"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/lixenwraith/rawtty/metrics"
)

// fakeDevice records write syscalls and replays scripted errors
type fakeDevice struct {
	out    bytes.Buffer
	calls  int
	errs   []error // consumed one per call before writing
	maxLen int     // short writes when > 0
}

func (f *fakeDevice) write(fd int, p []byte) (int, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return -1, err
		}
	}
	if f.maxLen > 0 && len(p) > f.maxLen {
		p = p[:f.maxLen]
	}
	f.out.Write(p)
	return len(p), nil
}

func newFakeStream(dev *fakeDevice, m *metrics.Collector) *Stream {
	s := NewStream(99, Options{Metrics: m})
	s.write = dev.write
	return s
}

func TestStream_ThresholdBuffering(t *testing.T) {
	dev := &fakeDevice{}
	s := newFakeStream(dev, nil)

	chunk := bytes.Repeat([]byte{'a'}, 200)

	s.Write(chunk)
	s.Write(chunk)
	assert.Zero(t, dev.calls, "below threshold must not flush")
	assert.Equal(t, 400, s.Buffered())

	s.Write(chunk)
	assert.Equal(t, 1, dev.calls, "crossing 512 flushes")
	assert.Zero(t, s.Buffered())
	assert.Equal(t, 600, dev.out.Len())

	s.Flush()
	assert.Equal(t, 1, dev.calls, "empty flush issues no syscall")
}

func TestStream_ExactThresholdDoesNotFlush(t *testing.T) {
	dev := &fakeDevice{}
	s := newFakeStream(dev, nil)

	s.Write(bytes.Repeat([]byte{'x'}, DefaultFlushThreshold))
	assert.Zero(t, dev.calls)

	s.WriteString("y")
	assert.Equal(t, 1, dev.calls)
}

func TestStream_NoLossOrDuplication(t *testing.T) {
	dev := &fakeDevice{maxLen: 37}
	s := newFakeStream(dev, nil)

	var want bytes.Buffer
	sizes := []int{1, 7, 511, 2, 900, 0, 64, 513, 3}
	for i, n := range sizes {
		p := bytes.Repeat([]byte{byte('a' + i)}, n)
		want.Write(p)
		s.Write(p)
	}
	s.Flush()

	assert.Equal(t, want.Bytes(), dev.out.Bytes())
}

func TestStream_InterruptedWritesRetried(t *testing.T) {
	m := metrics.New(nil)
	dev := &fakeDevice{errs: []error{unix.EINTR, unix.EINTR, unix.EINTR, nil}}
	s := newFakeStream(dev, m)

	s.WriteString("hello")
	s.Flush()

	assert.False(t, s.IsBad())
	assert.Equal(t, "hello", dev.out.String(), "delivered exactly once")
	assert.Equal(t, 4, dev.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InterruptedWrites))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Flushes))
}

func TestStream_FatalErrors(t *testing.T) {
	for _, errno := range []error{unix.EAGAIN, unix.EIO, unix.ENOSPC, unix.EBADF, unix.EINVAL, unix.EPIPE} {
		t.Run(errno.Error(), func(t *testing.T) {
			m := metrics.New(nil)
			dev := &fakeDevice{errs: []error{errno}}
			var fatal error
			s := NewStream(99, Options{Metrics: m, OnFatal: func(err error) { fatal = err }})
			s.write = dev.write

			s.WriteString("payload")
			s.Flush()

			require.True(t, s.IsBad())
			assert.ErrorIs(t, s.Err(), ErrFatalIO)
			assert.Equal(t, s.Err(), fatal)
			assert.Equal(t, 1, dev.calls)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FatalErrors.WithLabelValues("write")))

			// No further syscalls once bad
			s.Write(bytes.Repeat([]byte{'z'}, 2000))
			s.Flush()
			assert.Equal(t, 1, dev.calls)
			assert.Zero(t, s.Buffered())
			assert.True(t, s.IsBad())
		})
	}
}

func TestStream_ZeroProgressIsFatal(t *testing.T) {
	s := NewStream(99, Options{})
	calls := 0
	s.write = func(int, []byte) (int, error) {
		calls++
		return 0, nil
	}
	s.WriteString("x")
	s.Flush()

	assert.True(t, s.IsBad())
	assert.ErrorIs(t, s.Err(), io.ErrShortWrite)
	assert.Equal(t, 1, calls)
}

func TestStream_ReadChunk(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()
	defer slave.Close()

	m := metrics.New(nil)
	s := NewStream(int(slave.Fd()), Options{Metrics: m})

	// Canonical mode would hold the line; newline terminates it
	_, err = master.Write([]byte("abc\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := s.ReadChunk(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc\n", string(buf[:n]))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.InputBytes))
}

func TestStream_ReadChunkBounded(t *testing.T) {
	s := NewStream(99, Options{})
	var asked int
	s.read = func(fd int, p []byte) (int, error) {
		asked = len(p)
		return len(p), nil
	}
	n, err := s.ReadChunk(make([]byte, 4096))
	require.NoError(t, err)
	assert.Equal(t, ChunkSize, asked)
	assert.Equal(t, ChunkSize, n)
}

func TestStream_ReadErrors(t *testing.T) {
	s := NewStream(99, Options{})
	s.read = func(int, []byte) (int, error) { return -1, unix.EINTR }
	n, err := s.ReadChunk(make([]byte, 8))
	assert.Zero(t, n)
	assert.NoError(t, err)

	s.read = func(int, []byte) (int, error) { return 0, nil }
	_, err = s.ReadChunk(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, s.IsBad(), "EOF alone does not mark the stream bad")

	s.read = func(int, []byte) (int, error) { return -1, unix.EIO }
	_, err = s.ReadChunk(make([]byte, 8))
	assert.ErrorIs(t, err, ErrFatalIO)
	assert.True(t, s.IsBad())

	writes := 0
	s.write = func(int, []byte) (int, error) { writes++; return 0, nil }
	s.WriteString(string(make([]byte, 1024)))
	s.Flush()
	assert.Zero(t, writes, "read failure also stops output")
}

func TestStream_RealDevice(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	defer master.Close()
	defer slave.Close()

	s := NewStream(int(slave.Fd()), Options{})
	s.WriteString("ok")
	s.Flush()
	require.False(t, s.IsBad())

	got := make([]byte, 2)
	_, err = io.ReadFull(master, got)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}
