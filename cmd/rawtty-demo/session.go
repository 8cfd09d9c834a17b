//go:build unix

package main

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lixenwraith/rawtty/config"
	"github.com/lixenwraith/rawtty/metrics"
	"github.com/lixenwraith/rawtty/protocol"
	"github.com/lixenwraith/rawtty/service"
	"github.com/lixenwraith/rawtty/session"
	"github.com/lixenwraith/rawtty/terminal"
)

// echo renders the last decoded events below a header
type echo struct {
	mu    sync.Mutex
	lines []string
	quit  chan struct{}
	once  sync.Once
}

const echoHistory = 10

func newEcho() *echo {
	return &echo{quit: make(chan struct{})}
}

func (e *echo) stop() {
	e.once.Do(func() { close(e.quit) })
}

// observe runs on the loop goroutine
func (e *echo) observe(s *session.Session, ev session.Event) bool {
	switch ev.Kind {
	case session.KindNative:
		if isQuit(ev.Native) {
			e.stop()
			return true
		}
		e.push(ev.Native.String())
	case session.KindResize:
		e.push(fmt.Sprintf("resize %dx%d", ev.Cols, ev.Rows))
	case session.KindClosed:
		if ev.Err != nil {
			e.push("input error: " + ev.Err.Error())
		}
		e.stop()
		return true
	default:
		return false
	}
	e.draw(s)
	return true
}

func (e *echo) push(line string) {
	e.mu.Lock()
	e.lines = append(e.lines, line)
	if len(e.lines) > echoHistory {
		e.lines = e.lines[len(e.lines)-echoHistory:]
	}
	e.mu.Unlock()
}

func (e *echo) draw(s *session.Session) {
	eng, ok := s.Engine().(*terminal.Engine)
	if !ok {
		return
	}
	cols, rows := eng.Size()

	e.mu.Lock()
	lines := append([]string(nil), e.lines...)
	e.mu.Unlock()

	eng.ClearScreen()
	eng.MoveCursor(0, 0)
	eng.Print(fmt.Sprintf("rawtty %s  %dx%d  restorable=%t  (q to quit)", s.ID(), cols, rows, s.Restorable()))
	for i, line := range lines {
		if i+2 >= rows {
			break
		}
		eng.MoveCursor(0, i+2)
		eng.Print(line)
	}
	eng.Flush()
}

func isQuit(ev protocol.Event) bool {
	if ev.Type != protocol.EventKey {
		return false
	}
	if ev.Key == protocol.KeyRune && ev.Rune == 'q' && ev.Modifiers == protocol.ModNone {
		return true
	}
	return ev.Key == protocol.KeyCtrl && ev.Rune == 'c'
}

// runSession drives the ANSI engine through a session service on the hub
func runSession(cfg *config.Config, srv *metrics.Server, logger *zap.Logger) error {
	opts := cfg.SessionOptions()
	opts.Logger = logger
	opts.Metrics = srv.Collector()

	term := session.NewService(terminal.New(cfg.EngineOptions()), opts, srv.Name())

	hub := service.NewHub()
	if err := hub.Register(srv); err != nil {
		return err
	}
	if err := hub.Register(term); err != nil {
		return err
	}
	if err := hub.InitAll(); err != nil {
		return err
	}
	if err := hub.StartAll(); err != nil {
		return err
	}

	e := newEcho()
	err := term.Do(func(s *session.Session) {
		s.AddObserver(session.ObserverFunc(func(ev session.Event) bool {
			return e.observe(s, ev)
		}))
		e.draw(s)
	})
	if err == nil {
		select {
		case <-e.quit:
		case <-term.Loop().Done():
		}
	}

	if stopErr := hub.StopAll(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
