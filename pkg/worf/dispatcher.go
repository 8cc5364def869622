package worf

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Sirupsen/logrus"
)

// Outcome is the terminal state of one dispatched message.
type Outcome int

const (
	// OutcomeIgnored means the message was empty.
	OutcomeIgnored Outcome = iota
	// OutcomeRejected is an unknown command or a usage error.
	OutcomeRejected
	// OutcomeBlocked means a guard stopped the chain.
	OutcomeBlocked
	// OutcomeDenied means the gate did not approve.
	OutcomeDenied
	// OutcomeFailed means the handler returned an error.
	OutcomeFailed
	// OutcomeCompleted means the handler ran to completion.
	OutcomeCompleted
)

func (o Outcome) String() string {
	return [...]string{"ignored", "rejected", "blocked", "denied", "failed", "completed"}[o]
}

// Dispatcher routes chat messages to registered commands. Every message is
// handled independently; Dispatch is safe to call from many goroutines.
type Dispatcher struct {
	svc  *Services
	gate Gate

	commands map[string]*Command
	sync.RWMutex
}

// NewDispatcher wires the shared services and the single active gate. gate
// may be nil only if no registered command requires authentication.
func NewDispatcher(svc *Services, gate Gate) *Dispatcher {
	if svc.Log == nil {
		svc.Log = logrus.New()
	}
	return &Dispatcher{
		svc:      svc,
		gate:     gate,
		commands: make(map[string]*Command, 10),
	}
}

// Register adds a command. Names are matched case-insensitively.
func (d *Dispatcher) Register(cmds ...*Command) error {
	d.Lock()
	defer d.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(c.Name)
		if name == "" || c.Handler == nil {
			return NewError(KindConfiguration, "register", fmt.Errorf("command %q needs a name and a handler", c.Name))
		}
		if name == "help" {
			return NewError(KindConfiguration, "register", fmt.Errorf("%q is reserved", c.Name))
		}
		if _, ok := d.commands[name]; ok {
			return NewError(KindConfiguration, "register", fmt.Errorf("%s: %w", c.Name, ErrorDuplicateCommand))
		}
		if c.RequiresAuth && d.gate == nil {
			return NewError(KindConfiguration, "register", fmt.Errorf("command %q requires authentication but no auth plugin is configured", c.Name))
		}
		d.commands[name] = c
	}
	return nil
}

// Commands returns the registered commands sorted by name.
func (d *Dispatcher) Commands() []*Command {
	d.RLock()
	defer d.RUnlock()
	out := make([]*Command, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs one message through Received → guards → gate → handler.
// The bot mention must already be stripped from msg.Text by the chat driver.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Outcome {
	fields := Tokenize(msg.Text)
	if len(fields) == 0 {
		return OutcomeIgnored
	}
	name := strings.ToLower(fields[0])
	log := d.svc.Log.WithFields(logrus.Fields{
		"command": name,
		"channel": msg.Channel,
		"user":    msg.User.Name,
	})

	if name == "help" {
		d.help(msg)
		return OutcomeCompleted
	}

	d.RLock()
	cmd, ok := d.commands[name]
	d.RUnlock()
	if !ok {
		log.Debug("unknown command")
		d.svc.Notifier.SendError(msg.Channel,
			fmt.Sprintf("@%s: I don't know the command `%s`. Try `help`.", msg.User.Name, fields[0]),
			Markdown(), InThread(threadOf(msg)))
		return OutcomeRejected
	}

	args, err := bindArgs(cmd, fields[1:])
	if err != nil {
		log.WithError(err).Debug("bad usage")
		d.svc.Notifier.SendError(msg.Channel,
			fmt.Sprintf("@%s: %s. Usage: `%s`", msg.User.Name, err, cmd.Usage()),
			Markdown(), InThread(threadOf(msg)))
		return OutcomeRejected
	}

	cc := NewCommandContext(msg, cmd.Name, args)

	if i := cmd.Guards.Run(ctx, d.svc, cc); i >= 0 {
		log.WithField("guard", i).Info("command blocked by guard")
		return OutcomeBlocked
	}

	if cmd.RequiresAuth {
		decision := d.gate.Authenticate(ctx, cc)
		if !decision.Approved() {
			log.WithFields(logrus.Fields{
				"verdict": decision.Verdict,
				"reason":  decision.Reason,
			}).Info("authentication did not approve command")
			return OutcomeDenied
		}
	}

	if err := cmd.Handler(ctx, d.svc, cc); err != nil {
		log.WithError(err).Warn("command failed")
		d.svc.Notifier.SendError(msg.Channel,
			fmt.Sprintf("@%s: `%s` failed. Here are the details: ```%s```", msg.User.Name, cmd.Name, err),
			Markdown(), InThread(cc.Thread()))
		return OutcomeFailed
	}

	log.Info("command completed")
	return OutcomeCompleted
}

func (d *Dispatcher) help(msg Message) {
	var b strings.Builder
	b.WriteString("Here are the commands I know:\n")
	for _, c := range d.Commands() {
		fmt.Fprintf(&b, "• `%s`: %s\n", c.Usage(), c.Description)
	}
	d.svc.Notifier.SendInfo(msg.Channel, b.String(), Markdown(), EphemeralTo(msg.User.ID))
}

func bindArgs(cmd *Command, fields []string) (map[string]string, error) {
	n := len(cmd.Args)
	if len(fields) < n {
		return nil, fmt.Errorf("missing argument `%s`", cmd.Args[len(fields)])
	}
	if len(fields) > n && !cmd.Rest {
		return nil, fmt.Errorf("too many arguments")
	}

	args := make(map[string]string, n)
	for i, a := range cmd.Args {
		if cmd.Rest && i == n-1 {
			args[a] = strings.Join(fields[i:], " ")
			break
		}
		args[a] = fields[i]
	}
	return args, nil
}

func threadOf(msg Message) string {
	if msg.ThreadTs != "" {
		return msg.ThreadTs
	}
	return msg.Timestamp
}

// Tokenize splits a chat message into words and strips Slack's link markup,
// so "<https://github.com/acme|github.com/acme>" becomes "github.com/acme".
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = unescape(f)
	}
	return fields
}

func unescape(tok string) string {
	if !strings.HasPrefix(tok, "<") || !strings.HasSuffix(tok, ">") {
		return tok
	}
	inner := tok[1 : len(tok)-1]
	if i := strings.LastIndex(inner, "|"); i >= 0 {
		return inner[i+1:]
	}
	return strings.TrimPrefix(inner, "mailto:")
}
