// Package worftest has in-memory stand-ins for the chat and GitHub sides of
// the gateway, for use in tests.
package worftest

import (
	"context"
	"fmt"
	"io/ioutil"
	"sync"

	"github.com/Sirupsen/logrus"
	"github.com/pantheon-systems/worf/pkg/worf"
)

// Notification is one recorded message.
type Notification struct {
	Level   worf.Level
	Channel string
	Text    string
	Options worf.NotifyOptions
}

// Notifier records every notification it is asked to send.
type Notifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *Notifier) record(l worf.Level, channel, text string, opts []worf.NotifyOption) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{
		Level:   l,
		Channel: channel,
		Text:    text,
		Options: worf.ApplyNotifyOptions(opts...),
	})
}

func (n *Notifier) SendInfo(channel, text string, opts ...worf.NotifyOption) {
	n.record(worf.LevelInfo, channel, text, opts)
}

func (n *Notifier) SendError(channel, text string, opts ...worf.NotifyOption) {
	n.record(worf.LevelError, channel, text, opts)
}

func (n *Notifier) SendSuccess(channel, text string, opts ...worf.NotifyOption) {
	n.record(worf.LevelSuccess, channel, text, opts)
}

// Sent returns a copy of everything recorded so far.
func (n *Notifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// Count returns how many notifications of level l were sent.
func (n *Notifier) Count(l worf.Level) int {
	c := 0
	for _, m := range n.Sent() {
		if m.Level == l {
			c++
		}
	}
	return c
}

// Lookup is a fake worf.Lookup backed by maps. Setting Err makes every call fail.
type Lookup struct {
	Repos    map[string]bool           // "org/repo"
	Branches map[string]bool           // "org/repo@branch"
	Users    map[string]*worf.Identity // login
	Err      error

	mu    sync.Mutex
	calls []string
}

func (l *Lookup) called(format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, a...))
}

// Calls lists the lookups performed, e.g. "repo acme/widgets".
func (l *Lookup) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *Lookup) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	l.called("repo %s/%s", org, repo)
	if l.Err != nil {
		return false, l.Err
	}
	return l.Repos[org+"/"+repo], nil
}

func (l *Lookup) User(ctx context.Context, handle string) (*worf.Identity, error) {
	l.called("user %s", handle)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Users[handle], nil
}

func (l *Lookup) BranchExists(ctx context.Context, org, repo, branch string) (bool, error) {
	l.called("branch %s/%s@%s", org, repo, branch)
	if l.Err != nil {
		return false, l.Err
	}
	return l.Branches[org+"/"+repo+"@"+branch], nil
}

// Services returns Services wired to the fakes with a silent logger.
func Services(n *Notifier, l worf.Lookup) *worf.Services {
	log := logrus.New()
	log.Out = ioutil.Discard
	return &worf.Services{Lookup: l, Notifier: n, Log: log}
}

// Context returns a CommandContext for user "picard" in channel "C1".
func Context(command string, args map[string]string) *worf.CommandContext {
	return worf.NewCommandContext(worf.Message{
		Channel:   "C1",
		Timestamp: "1500000000.000100",
		User:      worf.User{ID: "U1", Name: "picard", Email: "picard@example.com"},
	}, command, args)
}

// Gate is a scripted worf.Gate.
type Gate struct {
	Decision worf.Decision

	mu    sync.Mutex
	calls int
}

func (g *Gate) Authenticate(ctx context.Context, cc *worf.CommandContext) worf.Decision {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return g.Decision
}

// Calls returns how many times Authenticate ran.
func (g *Gate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
