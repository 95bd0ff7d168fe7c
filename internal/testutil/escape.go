package testutil

import (
	"errors"
	"strings"
	"sync"

	"github.com/roach88/overpassql/internal/callback"
	"github.com/roach88/overpassql/internal/dialect"
)

// EscapeRecorder is an escape function that records every input it sees.
//
// The default transform upper-cases the input and wraps it in single
// quotes, which makes escaped literals easy to spot in generated SQL.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type EscapeRecorder struct {
	mu        sync.Mutex
	calls     []string
	transform func(string) (string, error)
}

// NewEscapeRecorder creates a recorder with the upper-casing transform.
func NewEscapeRecorder() *EscapeRecorder {
	return NewEscapeRecorderFunc(func(s string) (string, error) {
		return dialect.QuoteLiteral(strings.ToUpper(s)), nil
	})
}

// NewEscapeRecorderFunc creates a recorder around transform.
func NewEscapeRecorderFunc(transform func(string) (string, error)) *EscapeRecorder {
	return &EscapeRecorder{transform: transform}
}

// NewFailingEscape returns a recorder whose transform always fails with err.
func NewFailingEscape(err error) *EscapeRecorder {
	if err == nil {
		err = errors.New("escape rejected")
	}
	return NewEscapeRecorderFunc(func(string) (string, error) { return "", err })
}

// Func returns the recorder as a callback.Func.
func (r *EscapeRecorder) Func() callback.Func {
	return func(s string) (string, error) {
		r.mu.Lock()
		r.calls = append(r.calls, s)
		r.mu.Unlock()
		return r.transform(s)
	}
}

// Calls returns a copy of the recorded inputs in call order.
func (r *EscapeRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Count returns the number of recorded calls.
func (r *EscapeRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset clears the recorded calls.
func (r *EscapeRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
