//go:build unix

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/reactor"
	"github.com/lixenwraith/rawtty/service"
)

// ErrServiceStopped is returned when the loop ended before a call could run
var ErrServiceStopped = errors.New("terminal service stopped")

// Service runs a Session on its own reactor loop
type Service struct {
	factory protocol.Factory
	opts    Options
	deps    []string

	loop    *reactor.Loop
	session *Session
	runErr  chan error

	mu      sync.Mutex
	running bool
}

var _ service.Service = (*Service)(nil)

// NewService creates a terminal service; deps are hub service names started first
func NewService(factory protocol.Factory, opts Options, deps ...string) *Service {
	return &Service{
		factory: factory,
		opts:    opts,
		deps:    deps,
		runErr:  make(chan error, 1),
	}
}

// Name implements service.Service
func (s *Service) Name() string {
	return "terminal"
}

// Dependencies implements service.Service
func (s *Service) Dependencies() []string {
	return s.deps
}

// Init implements service.Service
// args[0]: Options (optional, replaces the constructor options)
func (s *Service) Init(args ...any) error {
	if len(args) > 0 {
		if o, ok := args[0].(Options); ok {
			s.opts = o
		}
	}
	if s.factory == nil {
		return fmt.Errorf("terminal service: no protocol engine factory")
	}

	s.loop = reactor.New()
	s.session = New(s.loop, s.factory, s.opts)
	s.loop.SetPanicHandler(s.session.opts.Registry.HandleCrash)
	return nil
}

// Start implements service.Service - launches the loop and sets the session up on it
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.loop == nil {
		s.mu.Unlock()
		return fmt.Errorf("terminal service: not initialized")
	}
	s.running = true
	s.mu.Unlock()

	s.session.opts.Registry.Go(func() {
		s.runErr <- s.loop.Run(context.Background())
	})

	var err error
	if !s.loop.Call(func() { err = s.session.Setup() }) {
		err = ErrServiceStopped
	}
	if err != nil {
		s.shutdownLoop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("terminal setup: %w", err)
	}
	return nil
}

// Stop implements service.Service - tears the session down and ends the loop
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if !s.loop.Call(func() { err = s.session.Teardown() }) {
		err = ErrServiceStopped
	}
	s.shutdownLoop()
	return err
}

func (s *Service) shutdownLoop() {
	s.loop.Stop()
	<-s.loop.Done()
	<-s.runErr
}

// Do runs fn with the session on the loop goroutine and waits for it
func (s *Service) Do(fn func(*Session)) error {
	if s.loop == nil || !s.loop.Call(func() { fn(s.session) }) {
		return ErrServiceStopped
	}
	return nil
}

// Post queues fn with the session on the loop goroutine
func (s *Service) Post(fn func(*Session)) bool {
	if s.loop == nil {
		return false
	}
	return s.loop.Post(func() { fn(s.session) })
}

// Loop returns the reactor loop driving the session
func (s *Service) Loop() *reactor.Loop {
	return s.loop
}
