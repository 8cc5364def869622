package worf_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pantheon-systems/worf/pkg/worf"
	"github.com/pantheon-systems/worf/pkg/worf/worftest"
)

type harness struct {
	n       *worftest.Notifier
	gate    *worftest.Gate
	d       *worf.Dispatcher
	handled int
	mu      sync.Mutex
}

func newHarness(t *testing.T, decision worf.Decision, guards worf.Chain, handlerErr error) *harness {
	h := &harness{
		n:    &worftest.Notifier{},
		gate: &worftest.Gate{Decision: decision},
	}
	h.d = worf.NewDispatcher(worftest.Services(h.n, &worftest.Lookup{}), h.gate)
	err := h.d.Register(&worf.Command{
		Name:         "SetDefaultBranch",
		Description:  "Sets the default branch",
		Args:         []string{"org", "repo", "branch"},
		Guards:       guards,
		RequiresAuth: true,
		Handler: func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error {
			h.mu.Lock()
			h.handled++
			h.mu.Unlock()
			if handlerErr != nil {
				return handlerErr
			}
			svc.Notifier.SendSuccess(cc.Channel(), "done")
			return nil
		},
	}, &worf.Command{
		Name:    "describe",
		Args:    []string{"org", "repo", "description"},
		Rest:    true,
		Handler: func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error { return nil },
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h
}

func msg(text string) worf.Message {
	return worf.Message{
		Channel:   "C1",
		Timestamp: "1.0",
		User:      worf.User{ID: "U1", Name: "picard", Email: "picard@example.com"},
		Text:      text,
	}
}

func TestDispatchCompleted(t *testing.T) {
	h := newHarness(t, worf.Approve(), nil, nil)
	out := h.d.Dispatch(context.Background(), msg("setdefaultbranch acme widgets main"))
	if out != worf.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", out)
	}
	if h.handled != 1 || h.gate.Calls() != 1 {
		t.Errorf("handler=%d gate=%d", h.handled, h.gate.Calls())
	}
}

func TestDispatchBlockedSkipsGateAndHandler(t *testing.T) {
	block := worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		svc.Notifier.SendError(cc.Channel(), "nope")
		return worf.Block
	})
	h := newHarness(t, worf.Approve(), worf.Chain{block}, nil)

	out := h.d.Dispatch(context.Background(), msg("setdefaultbranch acme widgets main"))
	if out != worf.OutcomeBlocked {
		t.Fatalf("expected blocked, got %s", out)
	}
	if h.handled != 0 || h.gate.Calls() != 0 {
		t.Errorf("handler=%d gate=%d after block", h.handled, h.gate.Calls())
	}
	if len(h.n.Sent()) != 1 {
		t.Errorf("expected exactly one notification, got %v", h.n.Sent())
	}
}

func TestDispatchDeniedSkipsHandler(t *testing.T) {
	for _, d := range []worf.Decision{worf.Deny("rejected"), worf.Unavailability("500")} {
		h := newHarness(t, d, nil, nil)
		out := h.d.Dispatch(context.Background(), msg("setdefaultbranch acme widgets main"))
		if out != worf.OutcomeDenied {
			t.Errorf("%s: expected denied, got %s", d.Verdict, out)
		}
		if h.handled != 0 {
			t.Errorf("%s: handler ran without approval", d.Verdict)
		}
	}
}

func TestDispatchHandlerError(t *testing.T) {
	h := newHarness(t, worf.Approve(), nil, errors.New("boom"))
	out := h.d.Dispatch(context.Background(), msg("setdefaultbranch acme widgets main"))
	if out != worf.OutcomeFailed {
		t.Fatalf("expected failed, got %s", out)
	}
	sent := h.n.Sent()
	if len(sent) != 1 || sent[0].Level != worf.LevelError || !strings.Contains(sent[0].Text, "boom") {
		t.Errorf("unexpected notifications %+v", sent)
	}
	if sent[0].Options.Thread != "1.0" {
		t.Errorf("error should be threaded, got %q", sent[0].Options.Thread)
	}
}

func TestDispatchRejects(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"frobnicate", "don't know"},
		{"setdefaultbranch acme widgets", "missing argument `branch`"},
		{"setdefaultbranch acme widgets main extra", "too many arguments"},
	}
	for _, tt := range tests {
		h := newHarness(t, worf.Approve(), nil, nil)
		out := h.d.Dispatch(context.Background(), msg(tt.text))
		if out != worf.OutcomeRejected {
			t.Errorf("%q: expected rejected, got %s", tt.text, out)
			continue
		}
		sent := h.n.Sent()
		if len(sent) != 1 || !strings.Contains(sent[0].Text, tt.want) {
			t.Errorf("%q: unexpected notifications %+v", tt.text, sent)
		}
	}
}

func TestDispatchIgnoresEmpty(t *testing.T) {
	h := newHarness(t, worf.Approve(), nil, nil)
	if out := h.d.Dispatch(context.Background(), msg("   ")); out != worf.OutcomeIgnored {
		t.Errorf("expected ignored, got %s", out)
	}
}

func TestDispatchRestArgument(t *testing.T) {
	var got string
	n := &worftest.Notifier{}
	d := worf.NewDispatcher(worftest.Services(n, nil), nil)
	err := d.Register(&worf.Command{
		Name: "describe",
		Args: []string{"org", "repo", "description"},
		Rest: true,
		Handler: func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error {
			got = cc.Arg("description")
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	d.Dispatch(context.Background(), msg("describe acme widgets the best   widgets"))
	if got != "the best widgets" {
		t.Errorf("unexpected rest argument %q", got)
	}
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t, worf.Approve(), nil, nil)
	if out := h.d.Dispatch(context.Background(), msg("help")); out != worf.OutcomeCompleted {
		t.Fatalf("expected completed, got %s", out)
	}
	sent := h.n.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Text, "SetDefaultBranch <org> <repo> <branch>") ||
		!strings.Contains(sent[0].Text, "describe <org> <repo> <description...>") {
		t.Errorf("help is missing usage: %s", sent[0].Text)
	}
	if sent[0].Options.EphemeralUser != "U1" {
		t.Errorf("help should be ephemeral")
	}
}

func TestRegisterRejectsDuplicatesAndUngatedAuth(t *testing.T) {
	handler := func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) error { return nil }
	d := worf.NewDispatcher(worftest.Services(&worftest.Notifier{}, nil), nil)

	if err := d.Register(&worf.Command{Name: "a", Handler: handler}); err != nil {
		t.Fatal(err)
	}
	err := d.Register(&worf.Command{Name: "A", Handler: handler})
	if !errors.Is(err, worf.ErrorDuplicateCommand) {
		t.Errorf("expected duplicate error, got %v", err)
	}
	err = d.Register(&worf.Command{Name: "b", Handler: handler, RequiresAuth: true})
	if !worf.IsKind(err, worf.KindConfiguration) {
		t.Errorf("expected configuration error for ungated auth command, got %v", err)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	h := newHarness(t, worf.Approve(), nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.d.Dispatch(context.Background(), msg("setdefaultbranch acme widgets main"))
		}()
	}
	wg.Wait()
	if h.handled != 20 || h.gate.Calls() != 20 {
		t.Errorf("handler=%d gate=%d, want 20 each", h.handled, h.gate.Calls())
	}
}

func TestTokenize(t *testing.T) {
	got := worf.Tokenize("adduser <https://github.com/acme|github.com/acme> <mailto:a@b.c|a@b.c> plain")
	want := []string{"adduser", "github.com/acme", "a@b.c", "plain"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %q want %q", i, got[i], want[i])
		}
	}
}
