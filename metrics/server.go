package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 2 * time.Second

// Server serves a prometheus registry over HTTP and implements service.Service
type Server struct {
	addr      string
	registry  *prometheus.Registry
	collector *Collector
	logger    *zap.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewServer creates a registry with the session counters and Go runtime collectors
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return &Server{
		addr:      addr,
		registry:  reg,
		collector: New(reg),
		logger:    logger,
	}
}

// Collector returns the counters registered on this server
func (s *Server) Collector() *Collector {
	return s.collector
}

// Handler returns the /metrics handler
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Name implements service.Service
func (s *Server) Name() string {
	return "metrics"
}

// Dependencies implements service.Service
func (s *Server) Dependencies() []string {
	return nil
}

// Init implements service.Service
func (s *Server) Init(args ...any) error {
	return nil
}

// Start implements service.Service; an empty address disables the listener
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.addr == "" || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.listener = ln
	s.done = make(chan struct{})

	srv, done := s.srv, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("metrics listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop implements service.Service
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	return err
}
