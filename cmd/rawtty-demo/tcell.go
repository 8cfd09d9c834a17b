//go:build unix

package main

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/rawtty/config"
	"github.com/lixenwraith/rawtty/metrics"
	"github.com/lixenwraith/rawtty/tcelltty"
)

// runTcell drives a tcell screen whose Tty is backed by rawmode and termio
func runTcell(cfg *config.Config, srv *metrics.Server, logger *zap.Logger) error {
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	opts := tcelltty.DefaultOptions()
	sessOpts := cfg.SessionOptions()
	opts.Capabilities = sessOpts.Capabilities
	opts.FlushThreshold = sessOpts.FlushThreshold
	if sessOpts.ControllingTerminalOnly {
		opts.Candidates = nil
	}
	opts.Path = sessOpts.TTYPath
	opts.Logger = logger
	opts.Metrics = srv.Collector()

	screen, tty, err := tcelltty.NewScreen(opts)
	if err != nil {
		return fmt.Errorf("tcell screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("tcell init: %w", err)
	}
	defer screen.Fini()

	if cfg.Engine.Mouse != "none" {
		screen.EnableMouse()
	}
	if cfg.Engine.BracketedPaste {
		screen.EnablePaste()
	}

	var last string
	for {
		drawTcell(screen, tty, last)

		switch ev := screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				return nil
			}
			last = ev.Name()
		case *tcell.EventMouse:
			x, y := ev.Position()
			last = fmt.Sprintf("mouse %d,%d buttons=%d", x, y, ev.Buttons())
		case *tcell.EventResize:
			cols, rows := ev.Size()
			last = fmt.Sprintf("resize %dx%d", cols, rows)
			screen.Sync()
		}
	}
}

func drawTcell(screen tcell.Screen, tty *tcelltty.Tty, last string) {
	screen.Clear()
	putString(screen, 0, 0, fmt.Sprintf("rawtty tcell  restorable=%t  (q to quit)", tty.Restorable()))
	putString(screen, 0, 2, last)
	screen.Show()
}

func putString(screen tcell.Screen, x, y int, s string) {
	for _, r := range s {
		screen.SetContent(x, y, r, nil, tcell.StyleDefault)
		x++
	}
}
