package bridge

import (
	"errors"
	"fmt"

	"github.com/roach88/overpassql/internal/callback"
	"github.com/roach88/overpassql/internal/dialect"
)

// Error is the error type every bridge operation returns.
//
// Code identifies the failure kind so callers (and the host protocol) can
// react to parse failures specifically. Err keeps the underlying cause
// inspectable with errors.Is and errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes bridge errors.
type ErrorCode string

const (
	// ErrCodeParsing indicates the query text does not conform to the grammar.
	ErrCodeParsing ErrorCode = "PARSING_ERROR"

	// ErrCodeUnsupportedDialect indicates an unrecognised dialect name.
	ErrCodeUnsupportedDialect ErrorCode = "UNSUPPORTED_DIALECT"

	// ErrCodeStructural indicates an extraction found an unexpected tree shape.
	ErrCodeStructural ErrorCode = "STRUCTURAL_ERROR"

	// ErrCodeCallback indicates the host escape function failed.
	ErrCodeCallback ErrorCode = "CALLBACK_ERROR"

	// ErrCodeInternal indicates a defect, such as a callback handle that
	// was released while still in use.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsParsingError returns true if err is a PARSING_ERROR.
func IsParsingError(err error) bool {
	return hasCode(err, ErrCodeParsing)
}

// IsUnsupportedDialect returns true if err is an UNSUPPORTED_DIALECT error.
func IsUnsupportedDialect(err error) bool {
	return hasCode(err, ErrCodeUnsupportedDialect)
}

// IsStructuralError returns true if err is a STRUCTURAL_ERROR.
func IsStructuralError(err error) bool {
	return hasCode(err, ErrCodeStructural)
}

// IsCallbackError returns true if err is a CALLBACK_ERROR.
func IsCallbackError(err error) bool {
	return hasCode(err, ErrCodeCallback)
}

// CodeOf returns the code of a bridge error, or ErrCodeInternal for any
// other error.
func CodeOf(err error) ErrorCode {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr.Code
	}
	return ErrCodeInternal
}

func hasCode(err error, code ErrorCode) bool {
	var bErr *Error
	return errors.As(err, &bErr) && bErr.Code == code
}

func structuralError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeStructural, Message: fmt.Sprintf(format, args...)}
}

// translate maps errors from the dialect, callback and sqlgen layers to a
// bridge error at the boundary. Anything unrecognised, including
// callback.ErrUnknownHandle, is an internal error.
func translate(err error) *Error {
	var (
		unsupported *dialect.UnsupportedError
		cbErr       *callback.Error
	)
	switch {
	case errors.As(err, &unsupported):
		return &Error{Code: ErrCodeUnsupportedDialect, Message: unsupported.Error(), Err: err}
	case errors.As(err, &cbErr):
		return &Error{Code: ErrCodeCallback, Message: err.Error(), Err: err}
	default:
		return &Error{Code: ErrCodeInternal, Message: err.Error(), Err: err}
	}
}
