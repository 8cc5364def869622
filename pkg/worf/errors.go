package worf

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the gateway knows how to report.
type ErrorKind int

const (
	// KindConfiguration is a missing or invalid setting. Fatal at startup.
	KindConfiguration ErrorKind = iota + 1
	// KindRemoteUnavailable means GitHub or Duo could not be reached or answered with garbage.
	KindRemoteUnavailable
	// KindResourceAbsent is a repository or branch that does not exist.
	KindResourceAbsent
	// KindIdentityAbsent is a user that does not exist.
	KindIdentityAbsent
	// KindAuthDenied is a rejected or impossible challenge.
	KindAuthDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindRemoteUnavailable:
		return "remote unavailable"
	case KindResourceAbsent:
		return "resource absent"
	case KindIdentityAbsent:
		return "identity absent"
	case KindAuthDenied:
		return "auth denied"
	}
	return "unknown"
}

// Error carries an ErrorKind along with the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error. err may be nil.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ErrorDuplicateCommand is returned when two commands share a name
var ErrorDuplicateCommand = errors.New("command already registered")
