package host

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/overpassql/internal/bridge"
)

// IDGenerator mints opaque handle ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 handle ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// handleTable maps opaque ids to the bridge handles the host holds.
type handleTable struct {
	mu      sync.Mutex
	ids     IDGenerator
	entries map[string]any
}

func newHandleTable(ids IDGenerator) *handleTable {
	return &handleTable{ids: ids, entries: make(map[string]any)}
}

func (t *handleTable) put(h any) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.ids.Generate()
	t.entries[id] = h
	return id
}

func (t *handleTable) request(id string) (*bridge.RequestHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.entries[id].(*bridge.RequestHandle)
	if !ok {
		return nil, invalidHandle("no request handle %q", id)
	}
	return h, nil
}

func (t *handleTable) selectors(id string) (*bridge.SelectorsHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.entries[id].(*bridge.SelectorsHandle)
	if !ok {
		return nil, invalidHandle("no selectors handle %q", id)
	}
	return h, nil
}

func (t *handleTable) release(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return invalidHandle("unknown handle %q", id)
	}
	delete(t.entries, id)
	return nil
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// protocolError is a failure detected by the server rather than the bridge.
type protocolError struct {
	code    string
	message string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func invalidHandle(format, id string) *protocolError {
	return &protocolError{code: ErrCodeInvalidHandle, message: fmt.Sprintf(format, id)}
}

func badRequest(format string, args ...any) *protocolError {
	return &protocolError{code: ErrCodeBadRequest, message: fmt.Sprintf(format, args...)}
}
