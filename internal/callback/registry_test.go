package callback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_RegisterInvokeRelease(t *testing.T) {
	reg := quietRegistry()

	calls := 0
	h := reg.Register(func(s string) (string, error) {
		calls++
		return strings.ToUpper(s), nil
	})
	assert.NotZero(t, h)
	assert.Equal(t, 1, reg.Len())

	out, err := reg.Invoke(h, "cafe")
	require.NoError(t, err)
	assert.Equal(t, "CAFE", out)
	assert.Equal(t, 1, calls, "callable must run exactly once per invocation")

	reg.Release(h)
	assert.Equal(t, 0, reg.Len())

	_, err = reg.Invoke(h, "cafe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownHandle))
	assert.Equal(t, 1, calls)
}

func TestRegistry_HandlesAreUnique(t *testing.T) {
	reg := quietRegistry()
	noop := func(s string) (string, error) { return s, nil }

	seen := make(map[Handle]bool)
	for range 100 {
		h := reg.Register(noop)
		assert.False(t, seen[h], "handle %d reused", h)
		seen[h] = true
	}
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	reg := quietRegistry()
	h := reg.Register(func(s string) (string, error) { return s, nil })

	reg.Release(h)
	reg.Release(h)
	reg.Release(Handle(0))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_ForeignHandleIsUnknown(t *testing.T) {
	a := quietRegistry()
	b := quietRegistry()

	h := a.Register(func(s string) (string, error) { return "a:" + s, nil })

	_, err := b.Resolve(h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestRegistry_CallableError(t *testing.T) {
	reg := quietRegistry()
	boom := errors.New("boom")
	h := reg.Register(func(string) (string, error) { return "", boom })

	_, err := reg.Invoke(h, "x")
	require.Error(t, err)
	assert.True(t, IsError(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry_CallablePanicIsRecovered(t *testing.T) {
	reg := quietRegistry()
	h := reg.Register(func(string) (string, error) { panic("host exploded") })

	var (
		out string
		err error
	)
	require.NotPanics(t, func() {
		out, err = reg.Invoke(h, "x")
	})
	assert.Empty(t, out)
	require.Error(t, err)

	var cbErr *Error
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, "host exploded", cbErr.Panic)
	assert.Equal(t, h, cbErr.Handle)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRegistry_ConcurrentCallersNeverCross(t *testing.T) {
	const workers = 16
	const rounds = 200

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := quietRegistry()
			tag := fmt.Sprintf("w%d:", w)
			for i := range rounds {
				h := reg.Register(func(s string) (string, error) { return tag + s, nil })
				out, err := reg.Invoke(h, fmt.Sprint(i))
				reg.Release(h)
				if err != nil {
					errs <- err
					return
				}
				if out != tag+fmt.Sprint(i) {
					errs <- fmt.Errorf("worker %d got foreign result %q", w, out)
					return
				}
			}
			if reg.Len() != 0 {
				errs <- fmt.Errorf("worker %d leaked %d registrations", w, reg.Len())
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
