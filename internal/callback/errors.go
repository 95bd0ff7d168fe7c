package callback

import (
	"errors"
	"fmt"
)

// Error reports a failure raised by a host callable.
//
// Exactly one of Err and Panic is set: Err when the callable returned an
// error, Panic when it panicked.
type Error struct {
	Handle Handle
	Input  string
	Err    error
	Panic  any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("callback %d panicked on %q: %v", uint64(e.Handle), e.Input, e.Panic)
	}
	return fmt.Sprintf("callback %d failed on %q: %v", uint64(e.Handle), e.Input, e.Err)
}

// Unwrap returns the error returned by the callable, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsError returns true if err is or wraps a callback failure.
func IsError(err error) bool {
	var cbErr *Error
	return errors.As(err, &cbErr)
}
