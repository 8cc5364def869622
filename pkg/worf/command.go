package worf

import (
	"context"
	"strings"
)

// User is the chat user issuing a command. Email is the attribute the auth
// gate verifies against.
type User struct {
	ID    string
	Name  string
	Email string
}

// Identity is an account on the remote service, e.g. a GitHub login.
type Identity struct {
	Login string
	Name  string
	URL   string
}

// Message is an inbound chat message handed to the dispatcher by a chat driver.
type Message struct {
	Channel   string
	Timestamp string
	ThreadTs  string
	User      User
	Text      string
}

// CommandContext is the read-only bundle handed to guards and handlers. It is
// built once per invocation by the dispatcher.
type CommandContext struct {
	channel   string
	timestamp string
	threadTs  string
	user      User
	command   string
	args      map[string]string
}

// NewCommandContext copies args so the caller can't mutate the context afterwards.
func NewCommandContext(msg Message, command string, args map[string]string) *CommandContext {
	cp := make(map[string]string, len(args))
	for k, v := range args {
		cp[k] = v
	}
	return &CommandContext{
		channel:   msg.Channel,
		timestamp: msg.Timestamp,
		threadTs:  msg.ThreadTs,
		user:      msg.User,
		command:   command,
		args:      cp,
	}
}

func (c *CommandContext) Channel() string   { return c.channel }
func (c *CommandContext) Timestamp() string { return c.timestamp }
func (c *CommandContext) User() User        { return c.user }
func (c *CommandContext) Command() string   { return c.command }

// Thread returns the timestamp replies should be threaded under. Messages that
// are already in a thread stay there, otherwise the command message anchors a
// new thread.
func (c *CommandContext) Thread() string {
	if c.threadTs != "" {
		return c.threadTs
	}
	return c.timestamp
}

// Arg returns the named argument, or "" if it was not supplied.
func (c *CommandContext) Arg(name string) string {
	return c.args[name]
}

// Args returns a copy of the argument map.
func (c *CommandContext) Args() map[string]string {
	cp := make(map[string]string, len(c.args))
	for k, v := range c.args {
		cp[k] = v
	}
	return cp
}

// Handler performs the command once every guard passed and, when required,
// the gate approved. A returned error is reported to the user by the dispatcher.
type Handler func(ctx context.Context, svc *Services, cc *CommandContext) error

// Command structure contains a command name, description, arguments and handler
type Command struct {
	Name        string
	Description string

	// Args are the positional argument names. When Rest is set the last
	// argument receives the remainder of the message.
	Args []string
	Rest bool

	Guards       Chain
	RequiresAuth bool
	Handler      Handler
}

// Usage renders the command's argument list, e.g. "setdefaultbranch <org> <repo> <branch>".
func (c *Command) Usage() string {
	parts := []string{c.Name}
	for i, a := range c.Args {
		if c.Rest && i == len(c.Args)-1 {
			parts = append(parts, "<"+a+"...>")
			continue
		}
		parts = append(parts, "<"+a+">")
	}
	return strings.Join(parts, " ")
}
