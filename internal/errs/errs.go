// Package errs defines the client's error taxonomy. Every failure that reaches the
// session controller is one of these kinds; none of them is fatal to the process.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the subsystem that produced it.
type Kind string

const (
	KindPermission Kind = "permission" // media access refused
	KindDevice     Kind = "device"     // media device missing or broken
	KindTransport  Kind = "transport"  // any HTTP call
	KindChannel    Kind = "channel"    // live update connection
	KindProtocol   Kind = "protocol"   // malformed or incomplete server response
	KindValidation Kind = "validation"
)

// Error carries a Kind and the operation that failed.
//
// Use errors.As(err, new(*errs.Error)) or KindOf to inspect it.
type Error struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s error during %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error during %s", e.Kind, e.Op)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New wraps err as a non-retryable error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Retryable wraps err as an error the user may retry manually.
func Retryable(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Retryable: true}
}

// Errorf builds a non-retryable error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether err was marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
