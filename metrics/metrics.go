// Package metrics exposes prometheus counters for terminal sessions.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rawtty"

// Collector groups the counters updated by termio and session
type Collector struct {
	BytesWritten      prometheus.Counter
	Flushes           prometheus.Counter
	InterruptedWrites prometheus.Counter
	InputBytes        prometheus.Counter
	FatalErrors       *prometheus.CounterVec
	Sessions          *prometheus.CounterVec

	fatalRead  prometheus.Counter
	fatalWrite prometheus.Counter
}

// New creates and registers the counters on reg
// A nil reg creates unregistered counters, useful in tests
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes transmitted to the terminal device.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Output buffer flushes that reached the device.",
		}),
		InterruptedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupted_writes_total",
			Help:      "write(2) calls retried after EINTR.",
		}),
		InputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Bytes read from the terminal device.",
		}),
		FatalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_io_errors_total",
			Help:      "Non-retryable I/O errors that marked a session bad.",
		}, []string{"op"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session setup and teardown transitions.",
		}, []string{"transition"}),
	}
	c.fatalRead = c.FatalErrors.WithLabelValues("read")
	c.fatalWrite = c.FatalErrors.WithLabelValues("write")

	if reg != nil {
		reg.MustRegister(
			c.BytesWritten,
			c.Flushes,
			c.InterruptedWrites,
			c.InputBytes,
			c.FatalErrors,
			c.Sessions,
		)
	}
	return c
}

func (c *Collector) AddWritten(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.BytesWritten.Add(float64(n))
}

func (c *Collector) IncFlush() {
	if c == nil {
		return
	}
	c.Flushes.Inc()
}

func (c *Collector) IncInterrupted() {
	if c == nil {
		return
	}
	c.InterruptedWrites.Inc()
}

func (c *Collector) AddInput(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.InputBytes.Add(float64(n))
}

func (c *Collector) IncFatalRead() {
	if c == nil {
		return
	}
	c.fatalRead.Inc()
}

func (c *Collector) IncFatalWrite() {
	if c == nil {
		return
	}
	c.fatalWrite.Inc()
}

// Transition counts a session lifecycle step ("setup", "teardown", "setup_failed")
func (c *Collector) Transition(name string) {
	if c == nil {
		return
	}
	c.Sessions.WithLabelValues(name).Inc()
}
