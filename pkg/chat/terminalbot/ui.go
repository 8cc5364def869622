package terminalbot

import (
	"fmt"

	"github.com/jroimartin/gocui"
)

const (
	titleView  = "titleView"
	inputView  = "inputView"
	outputView = "outputView"
	logView    = "logView"
)

func (t *TerminalBot) viewTitle(lMaxX int, lMaxY int) error {
	v, err := t.gui.SetView(titleView, -1, -1, lMaxX, 1)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		fmt.Fprintf(v, "-={ %s }=- acting as %s <%s> [ctrl-c] to exit", t.name, t.user.Name, t.user.Email)
	}

	v.Frame = false
	v.BgColor = gocui.ColorGreen
	v.FgColor = gocui.ColorBlack
	return nil
}

func (t *TerminalBot) viewLog(lMaxX int, lMaxY int) error {
	v, err := t.gui.SetView(logView, 0, 1, lMaxX-1, 9)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
	}

	v.Title = "Log"
	v.Frame = true
	v.Editable = false
	v.Autoscroll = true
	v.Wrap = true
	return nil
}

func (t *TerminalBot) viewOutput(lMaxX int, lMaxY int) error {
	v, err := t.gui.SetView(outputView, 0, 10, lMaxX-1, lMaxY-4)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
	}
	v.Title = "Chat output"
	v.Frame = true
	v.Editable = false
	v.Autoscroll = true
	v.Wrap = true
	return nil
}

func (t *TerminalBot) viewInput(lMaxX int, lMaxY int) error {
	v, err := t.gui.SetView(inputView, 0, lMaxY-3, lMaxX-1, lMaxY-1)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
	}
	v.Frame = true
	v.Editable = true
	v.Wrap = false

	v.Title = "Input, try: help"
	return nil
}

func (t *TerminalBot) layoutUI(*gocui.Gui) error {
	maxX, maxY := t.gui.Size()

	for _, f := range []func(int, int) error{t.viewTitle, t.viewLog, t.viewOutput, t.viewInput} {
		if err := f(maxX, maxY); err != nil {
			return err
		}
	}

	_, err := t.gui.SetCurrentView(inputView)
	return err
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}
