package worf

import (
	"context"

	"github.com/Sirupsen/logrus"
)

// Lookup answers existence questions about the remote service. Absence is
// not an error: RepoExists and BranchExists return false, User returns nil.
// Implementations must be safe for concurrent use.
type Lookup interface {
	RepoExists(ctx context.Context, org, repo string) (bool, error)
	User(ctx context.Context, handle string) (*Identity, error)
	BranchExists(ctx context.Context, org, repo, branch string) (bool, error)
}

// Services is the shared, read-only state guards and handlers operate with.
type Services struct {
	Lookup   Lookup
	Notifier Notifier
	Log      *logrus.Logger
}

// Result is what a guard returns.
type Result int

const (
	// Pass lets the chain continue.
	Pass Result = iota
	// Block stops the chain. The guard has already told the user why.
	Block
)

func (r Result) String() string {
	if r == Block {
		return "block"
	}
	return "pass"
}

// Guard is a precondition check. A guard that blocks must send exactly one
// error notification itself; the chain does not translate anything.
type Guard interface {
	Check(ctx context.Context, svc *Services, cc *CommandContext) Result
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, svc *Services, cc *CommandContext) Result

// Check calls f.
func (f GuardFunc) Check(ctx context.Context, svc *Services, cc *CommandContext) Result {
	return f(ctx, svc, cc)
}

// Chain is an ordered list of guards.
type Chain []Guard

// Run evaluates the guards strictly in order and stops at the first Block.
// It returns the index of the blocking guard, or -1 when every guard passed.
func (c Chain) Run(ctx context.Context, svc *Services, cc *CommandContext) int {
	for i, g := range c {
		if g.Check(ctx, svc, cc) == Block {
			return i
		}
	}
	return -1
}
