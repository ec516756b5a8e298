package inference

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Session wraps exactly one of these.
var (
	// ErrLoadFailure means the backend could not be initialized. Nothing
	// acquired during the attempt is left allocated.
	ErrLoadFailure = errors.New("load failure")
	// ErrContextWindowExceeded aborts the current turn when the next batch
	// would not fit into the context window.
	ErrContextWindowExceeded = errors.New("context window exceeded")
	// ErrBackendDecode aborts the current turn when tokenize, decode, or
	// sample fails.
	ErrBackendDecode = errors.New("backend decode failure")
	// ErrMisuse reports a call that is invalid in the session's current
	// state. The session is left unchanged.
	ErrMisuse = errors.New("misuse")
)

// Error carries the operation that failed alongside its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func misuse(op, format string, args ...any) *Error {
	return newError(op, ErrMisuse, fmt.Errorf(format, args...))
}

// IsFatal reports whether err ended the current turn.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLoadFailure) ||
		errors.Is(err, ErrContextWindowExceeded) ||
		errors.Is(err, ErrBackendDecode)
}
