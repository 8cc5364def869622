package terminalbot

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sirupsen/logrus"
	"github.com/jroimartin/gocui"
	"github.com/pantheon-systems/worf/pkg/worf"
)

const channel = "term"

// TerminalBot is a local chat for trying commands without slack. Everything
// typed into the input view is issued as the configured user.
type TerminalBot struct {
	gui  *gocui.Gui
	name string
	user worf.User
	log  *logrus.Logger
	sink *logSink

	ctx        context.Context
	dispatcher *worf.Dispatcher
	seq        int64
}

var _ worf.Notifier = (*TerminalBot)(nil)

// New sets up the terminal UI. name is the bot's name, user is who the
// terminal operator acts as.
func New(name string, user worf.User, log *logrus.Logger) (*TerminalBot, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}

	t := &TerminalBot{
		gui:  g,
		name: name,
		user: user,
		log:  log,
		sink: &logSink{out: log.Out},
	}
	// installed once, before anything else logs; Run only flips the sink
	log.Out = t.sink

	g.SetManagerFunc(t.layoutUI)
	g.Highlight = true
	g.SelFgColor = gocui.ColorGreen

	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		g.Close()
		return nil, err
	}
	if err := g.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, t.submit); err != nil {
		g.Close()
		return nil, err
	}
	return t, nil
}

// SendInfo implements worf.Notifier
func (t *TerminalBot) SendInfo(ch, text string, opts ...worf.NotifyOption) {
	t.writeView(outputView, format(worf.LevelInfo, text, worf.ApplyNotifyOptions(opts...)))
}

// SendError implements worf.Notifier
func (t *TerminalBot) SendError(ch, text string, opts ...worf.NotifyOption) {
	t.writeView(outputView, format(worf.LevelError, text, worf.ApplyNotifyOptions(opts...)))
}

// SendSuccess implements worf.Notifier
func (t *TerminalBot) SendSuccess(ch, text string, opts ...worf.NotifyOption) {
	t.writeView(outputView, format(worf.LevelSuccess, text, worf.ApplyNotifyOptions(opts...)))
}

func format(level worf.Level, text string, o worf.NotifyOptions) string {
	var tags []string
	if o.EphemeralUser != "" {
		tags = append(tags, "only you")
	}
	if o.Thread != "" {
		tags = append(tags, "thread "+o.Thread)
	}
	prefix := strings.ToUpper(level.String())
	if len(tags) > 0 {
		prefix += " (" + strings.Join(tags, ", ") + ")"
	}
	return prefix + ": " + text
}

// Run starts the UI and blocks until the operator quits or ctx is done.
func (t *TerminalBot) Run(ctx context.Context, d *worf.Dispatcher) error {
	t.ctx = ctx
	t.dispatcher = d

	t.sink.attach(func(s string) { t.appendView(logView, s) })
	defer t.sink.attach(nil)

	go func() {
		<-ctx.Done()
		t.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}()

	t.log.Info("starting terminal event loop")
	defer t.gui.Close()
	if err := t.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

// submit reads the input view and issues the line as a command.
func (t *TerminalBot) submit(g *gocui.Gui, iv *gocui.View) error {
	// We want to read the view’s buffer from the beginning.
	iv.Rewind()
	line := strings.TrimSpace(iv.Buffer())
	iv.Clear()
	iv.SetCursor(0, 0)
	if line == "" {
		return nil
	}

	t.writeView(outputView, t.user.Name+"> "+line)
	text, ok := parseInput(line, t.name)
	if !ok {
		t.log.Debug("bot not being addressed")
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10) + "." + strconv.FormatInt(atomic.AddInt64(&t.seq, 1), 10)
	go t.dispatcher.Dispatch(t.ctx, worf.Message{
		Channel:   channel,
		Timestamp: ts,
		User:      t.user,
		Text:      text,
	})
	return nil
}

// parseInput accepts "@name cmd args" as well as a bare "cmd args".
func parseInput(line, name string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) > 0 && fields[0] == "@"+name {
		fields = fields[1:]
	}
	// ignore when someone addresses us without a command
	if len(fields) == 0 {
		return "", false
	}
	return strings.Join(fields, " "), true
}

// writeView appends a timestamped line to the named view. Safe to call from
// any goroutine.
func (t *TerminalBot) writeView(name, text string) {
	t.appendView(name, time.Now().Format("15:04:05")+"> "+text+"\n")
}

// appendView writes s to the named view on the UI goroutine. Views only
// exist after the first layout, earlier writes are dropped.
func (t *TerminalBot) appendView(name, s string) {
	t.gui.Update(func(g *gocui.Gui) error {
		if v, err := g.View(name); err == nil {
			fmt.Fprint(v, s)
		}
		return nil
	})
}

// logSink is the logger's output for the lifetime of the bot. While the UI
// runs, lines go to the log view, otherwise to the original writer.
type logSink struct {
	mu     sync.Mutex
	out    io.Writer
	toView func(string)
}

func (s *logSink) attach(toView func(string)) {
	s.mu.Lock()
	s.toView = toView
	s.mu.Unlock()
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.toView != nil {
		s.toView(string(p))
		return len(p), nil
	}
	return s.out.Write(p)
}
