package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pantheon-systems/worf/pkg/worf"
	"github.com/pantheon-systems/worf/pkg/worf/worftest"
)

type fakeRepos struct {
	err   error
	calls []string
}

func (f *fakeRepos) SetDefaultBranch(ctx context.Context, org, repo, branch string) error {
	f.calls = append(f.calls, "default "+org+"/"+repo+" "+branch)
	return f.err
}

func (f *fakeRepos) SetDescription(ctx context.Context, org, repo, description string) error {
	f.calls = append(f.calls, "description "+org+"/"+repo+" "+description)
	return f.err
}

func (f *fakeRepos) AddCollaborator(ctx context.Context, org, repo, user, permission string) error {
	f.calls = append(f.calls, "collab "+org+"/"+repo+" "+user+" "+permission)
	return f.err
}

type setup struct {
	d      *worf.Dispatcher
	n      *worftest.Notifier
	lookup *worftest.Lookup
	gate   *worftest.Gate
	repos  *fakeRepos
}

func newSetup(t *testing.T) *setup {
	s := &setup{
		n: &worftest.Notifier{},
		lookup: &worftest.Lookup{
			Repos:    map[string]bool{"acme/widgets": true},
			Branches: map[string]bool{"acme/widgets@main": true},
			Users:    map[string]*worf.Identity{"wesley": {Login: "wesley"}},
		},
		gate:  &worftest.Gate{Decision: worf.Approve()},
		repos: &fakeRepos{},
	}
	s.d = worf.NewDispatcher(worftest.Services(s.n, s.lookup), s.gate)
	if err := s.d.Register(GitHub(s.repos, []string{"acme"})...); err != nil {
		t.Fatal(err)
	}
	return s
}

func (s *setup) run(text string) worf.Outcome {
	return s.d.Dispatch(context.Background(), worf.Message{
		Channel:   "C1",
		Timestamp: "1.0",
		User:      worf.User{ID: "U1", Name: "picard", Email: "picard@example.com"},
		Text:      text,
	})
}

func TestSetDefaultBranch(t *testing.T) {
	s := newSetup(t)
	if out := s.run("setdefaultbranch acme widgets main"); out != worf.OutcomeCompleted {
		t.Fatalf("got %s", out)
	}
	if len(s.repos.calls) != 1 || s.repos.calls[0] != "default acme/widgets main" {
		t.Errorf("unexpected calls %v", s.repos.calls)
	}
	if s.gate.Calls() != 1 {
		t.Errorf("setdefaultbranch must authenticate")
	}
}

func TestSetDefaultBranchMissingRepo(t *testing.T) {
	s := newSetup(t)
	if out := s.run("setdefaultbranch acme gadgets main"); out != worf.OutcomeBlocked {
		t.Fatalf("got %s", out)
	}
	sent := s.n.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "`acme/gadgets` does not exist") {
		t.Errorf("unexpected notifications %+v", sent)
	}
	if len(s.repos.calls) != 0 || s.gate.Calls() != 0 {
		t.Errorf("blocked command reached gate or GitHub")
	}
}

func TestAddCollab(t *testing.T) {
	s := newSetup(t)
	if out := s.run("addcollab acme widgets wesley push"); out != worf.OutcomeCompleted {
		t.Fatalf("got %s", out)
	}
	if s.repos.calls[0] != "collab acme/widgets wesley push" {
		t.Errorf("unexpected calls %v", s.repos.calls)
	}

	s = newSetup(t)
	if out := s.run("addcollab acme widgets q push"); out != worf.OutcomeBlocked {
		t.Errorf("unknown user: got %s", out)
	}
	s = newSetup(t)
	if out := s.run("addcollab acme widgets wesley owner"); out != worf.OutcomeBlocked {
		t.Errorf("bad permission: got %s", out)
	}
}

func TestOrgNotManaged(t *testing.T) {
	s := newSetup(t)
	if out := s.run("setdescription umbrella widgets hello"); out != worf.OutcomeBlocked {
		t.Fatalf("got %s", out)
	}
	if len(s.lookup.Calls()) != 0 {
		t.Errorf("lookups ran for an unmanaged org: %v", s.lookup.Calls())
	}
}

func TestSetDescriptionSkipsGate(t *testing.T) {
	s := newSetup(t)
	if out := s.run("setdescription acme widgets Sprockets and  cogs"); out != worf.OutcomeCompleted {
		t.Fatalf("got %s", out)
	}
	if s.gate.Calls() != 0 {
		t.Errorf("setdescription should not authenticate")
	}
	if s.repos.calls[0] != "description acme/widgets Sprockets and cogs" {
		t.Errorf("unexpected calls %v", s.repos.calls)
	}
}

func TestDeniedNeverReachesGitHub(t *testing.T) {
	s := newSetup(t)
	s.gate.Decision = worf.Deny("rejected")
	if out := s.run("setdefaultbranch acme widgets main"); out != worf.OutcomeDenied {
		t.Fatalf("got %s", out)
	}
	if len(s.repos.calls) != 0 {
		t.Errorf("privileged action ran after denial")
	}
}

func TestHandlerError(t *testing.T) {
	s := newSetup(t)
	s.repos.err = errors.New("422 Validation Failed")
	if out := s.run("setdefaultbranch acme widgets main"); out != worf.OutcomeFailed {
		t.Fatalf("got %s", out)
	}
	sent := s.n.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "422 Validation Failed") {
		t.Errorf("unexpected notifications %+v", sent)
	}
}
