package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/stretchr/testify/require"
)

func TestNone_ReadBlocksUntilInterrupted(t *testing.T) {
	n := NewNone()
	done := make(chan error, 1)
	go func() {
		_, err := n.Read(nil)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Read returned before Interrupt")
	case <-time.After(10 * time.Millisecond):
	}

	n.Interrupt()
	require.ErrorIs(t, <-done, errs.ErrReaderInterrupted)
}

func TestReplay_ReturnsOutOfScope(t *testing.T) {
	r := NewReplay("captured.dat")
	require.ErrorIs(t, r.Initialise(), ErrOutOfScope)
	_, err := r.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrOutOfScope)
}

type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) Initialise() error { return nil }
func (f *flakySource) Reset() error      { return nil }
func (f *flakySource) Status() Status    { return Status{} }
func (f *flakySource) Interrupt()        {}

func (f *flakySource) Read(buf []byte) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("transient link error")
	}
	return len(buf), nil
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakySource{failures: 2}
	r := NewRetrying(inner, time.Millisecond)
	// Shrink the initial interval so the test doesn't wait on the library
	// default of half a second per retry.
	r.b.InitialInterval = time.Microsecond
	r.b.Reset()

	n, err := r.Read(context.Background(), make([]byte, 4))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, 3, inner.calls)
}

func TestRetrying_ContextCancelStopsRetry(t *testing.T) {
	inner := &flakySource{failures: 1000}
	r := NewRetrying(inner, time.Millisecond)
	r.b.InitialInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := r.Read(ctx, make([]byte, 4))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
