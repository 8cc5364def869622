package worf

import "context"

// Verdict is the outcome class of an authentication attempt.
type Verdict int

const (
	Approved Verdict = iota + 1
	Denied
	Unavailable
)

func (v Verdict) String() string {
	switch v {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Decision is produced exactly once per authentication attempt.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Approve returns an Approved decision.
func Approve() Decision { return Decision{Verdict: Approved} }

// Deny returns a Denied decision.
func Deny(reason string) Decision { return Decision{Verdict: Denied, Reason: reason} }

// Unavailability returns an Unavailable decision.
func Unavailability(reason string) Decision { return Decision{Verdict: Unavailable, Reason: reason} }

// Approved reports whether the privileged action may run.
func (d Decision) Approved() bool { return d.Verdict == Approved }

// Err converts a non-approved decision into an *Error, nil otherwise.
func (d Decision) Err() error {
	switch d.Verdict {
	case Approved:
		return nil
	case Denied:
		return NewError(KindAuthDenied, "authenticate", errorString(d.Reason))
	}
	return NewError(KindRemoteUnavailable, "authenticate", errorString(d.Reason))
}

type errorString string

func (e errorString) Error() string { return string(e) }

// Gate decides whether the acting user approves a privileged action. A Gate is
// built once at startup and must be safe for concurrent use. Implementations
// notify the user themselves.
type Gate interface {
	Authenticate(ctx context.Context, cc *CommandContext) Decision
}
