package worf_test

import (
	"context"
	"testing"

	"github.com/pantheon-systems/worf/pkg/worf"
	"github.com/pantheon-systems/worf/pkg/worf/worftest"
)

// recordingGuard appends its name to *trace and returns res. Blocking
// recordingGuards send one error, like real guards do.
func recordingGuard(name string, res worf.Result, trace *[]string) worf.Guard {
	return worf.GuardFunc(func(ctx context.Context, svc *worf.Services, cc *worf.CommandContext) worf.Result {
		*trace = append(*trace, name)
		if res == worf.Block {
			svc.Notifier.SendError(cc.Channel(), name+" blocked")
		}
		return res
	})
}

func TestChainRunsInOrder(t *testing.T) {
	var trace []string
	n := &worftest.Notifier{}
	chain := worf.Chain{
		recordingGuard("a", worf.Pass, &trace),
		recordingGuard("b", worf.Pass, &trace),
		recordingGuard("c", worf.Pass, &trace),
	}

	if i := chain.Run(context.Background(), worftest.Services(n, nil), worftest.Context("x", nil)); i != -1 {
		t.Fatalf("expected every guard to pass, blocked at %d", i)
	}
	if got := len(trace); got != 3 || trace[0] != "a" || trace[1] != "b" || trace[2] != "c" {
		t.Errorf("unexpected evaluation order %v", trace)
	}
	if len(n.Sent()) != 0 {
		t.Errorf("passing chain sent notifications: %v", n.Sent())
	}
}

func TestChainShortCircuits(t *testing.T) {
	for blockAt := 0; blockAt < 4; blockAt++ {
		var trace []string
		n := &worftest.Notifier{}
		var chain worf.Chain
		for i := 0; i < 4; i++ {
			res := worf.Pass
			if i == blockAt {
				res = worf.Block
			}
			chain = append(chain, recordingGuard(string(rune('a'+i)), res, &trace))
		}

		i := chain.Run(context.Background(), worftest.Services(n, nil), worftest.Context("x", nil))
		if i != blockAt {
			t.Errorf("blockAt=%d: Run returned %d", blockAt, i)
		}
		if len(trace) != blockAt+1 {
			t.Errorf("blockAt=%d: guards after the block ran: %v", blockAt, trace)
		}
		if c := n.Count(worf.LevelError); c != 1 {
			t.Errorf("blockAt=%d: expected 1 error notification, got %d", blockAt, c)
		}
	}
}

func TestEmptyChainPasses(t *testing.T) {
	var chain worf.Chain
	if i := chain.Run(context.Background(), worftest.Services(&worftest.Notifier{}, nil), worftest.Context("x", nil)); i != -1 {
		t.Errorf("empty chain blocked at %d", i)
	}
}

func TestCommandContextIsACopy(t *testing.T) {
	args := map[string]string{"org": "acme"}
	cc := worftest.Context("x", args)
	args["org"] = "evil"
	if cc.Arg("org") != "acme" {
		t.Errorf("context shares the caller's map")
	}
	cc.Args()["org"] = "evil"
	if cc.Arg("org") != "acme" {
		t.Errorf("Args() exposes the internal map")
	}
}

func TestThread(t *testing.T) {
	cc := worf.NewCommandContext(worf.Message{Timestamp: "1", ThreadTs: "0"}, "x", nil)
	if cc.Thread() != "0" {
		t.Errorf("expected existing thread, got %q", cc.Thread())
	}
	cc = worf.NewCommandContext(worf.Message{Timestamp: "1"}, "x", nil)
	if cc.Thread() != "1" {
		t.Errorf("expected message timestamp, got %q", cc.Thread())
	}
}

func TestDecisionErr(t *testing.T) {
	if err := worf.Approve().Err(); err != nil {
		t.Errorf("approved decision returned %v", err)
	}
	if !worf.IsKind(worf.Deny("rejected").Err(), worf.KindAuthDenied) {
		t.Errorf("denied decision should map to KindAuthDenied")
	}
	if !worf.IsKind(worf.Unavailability("500").Err(), worf.KindRemoteUnavailable) {
		t.Errorf("unavailable decision should map to KindRemoteUnavailable")
	}
}
