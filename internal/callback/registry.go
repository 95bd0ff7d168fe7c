// Package callback stores host-supplied functions for the duration of a
// single compiling call and invokes them from inside SQL generation.
//
// A Registry is created per top-level call and released entries are never
// resolvable again. Handles are minted from one process-wide counter, so a
// handle registered in one Registry is never known to another: a goroutine
// can only ever reach the callables it registered itself.
//
// Typical use:
//
//	reg := callback.NewRegistry()
//	h := reg.Register(escape)
//	defer reg.Release(h)
//	quoted, err := reg.Invoke(h, "cafe")
package callback

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// Func is a host-supplied string transformation, typically a literal quoting
// function.
type Func func(input string) (string, error)

// Handle identifies a registered Func. The zero Handle is never issued.
type Handle uint64

// String returns the decimal form used on the host protocol wire.
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ErrUnknownHandle is returned when a handle was never registered in this
// registry or has already been released. It indicates a lifetime bug.
var ErrUnknownHandle = errors.New("unknown callback handle")

// counter is shared by all registries so handles never collide.
var counter atomic.Uint64

// Registry maps handles to callables.
type Registry struct {
	mu      sync.Mutex
	entries map[Handle]Func
	logger  *slog.Logger
}

// NewRegistry returns an empty registry that logs through slog.Default.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Handle]Func),
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for consistency errors.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register stores fn under a fresh handle.
func (r *Registry) Register(fn Func) Handle {
	h := Handle(counter.Add(1))
	r.mu.Lock()
	r.entries[h] = fn
	r.mu.Unlock()
	return h
}

// Resolve returns the callable registered under h.
func (r *Registry) Resolve(h Handle) (Func, error) {
	r.mu.Lock()
	fn, ok := r.entries[h]
	r.mu.Unlock()
	if !ok {
		r.logger.Error("callback handle not registered", "handle", uint64(h))
		return nil, fmt.Errorf("resolve %d: %w", uint64(h), ErrUnknownHandle)
	}
	return fn, nil
}

// Invoke resolves h and calls the callable exactly once with input.
//
// A callable that returns an error or panics yields *Error. The panic is
// recovered so a failing host function never takes the process down.
func (r *Registry) Invoke(h Handle, input string) (out string, err error) {
	fn, err := r.Resolve(h)
	if err != nil {
		return "", err
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &Error{Handle: h, Input: input, Panic: rec}
		}
	}()

	out, callErr := fn(input)
	if callErr != nil {
		return "", &Error{Handle: h, Input: input, Err: callErr}
	}
	return out, nil
}

// Release removes h. Releasing an unknown handle is a no-op.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	delete(r.entries, h)
	r.mu.Unlock()
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
