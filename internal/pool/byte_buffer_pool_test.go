package pool

import (
	"testing"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_AcquireReleaseRoundTrip(t *testing.T) {
	p := NewBufferPool(4, 10, 0)
	require.Equal(t, 4, p.Cap())

	bufs, err := p.TryAcquire(3)
	require.NoError(t, err)
	require.Len(t, bufs, 3)
	for _, b := range bufs {
		require.Len(t, b.Bytes(), 10)
	}

	p.Release(bufs)

	bufs2, err := p.TryAcquire(4)
	require.NoError(t, err)
	require.Len(t, bufs2, 4)
}

func TestBufferPool_PartialAvailabilityFailsAndReturnsNothingHeld(t *testing.T) {
	p := NewBufferPool(2, 10, 0)

	held, err := p.TryAcquire(2)
	require.NoError(t, err)

	_, err = p.TryAcquire(1)
	require.ErrorIs(t, err, errs.ErrArchiveTooBusy)

	p.Release(held)
	bufs, err := p.TryAcquire(2)
	require.NoError(t, err)
	require.Len(t, bufs, 2)
}

func TestBufferPool_TryAcquireMoreThanInsufficientPutsBackPartialGrab(t *testing.T) {
	p := NewBufferPool(3, 10, 0)

	_, err := p.TryAcquire(5)
	require.ErrorIs(t, err, errs.ErrArchiveTooBusy)

	bufs, err := p.TryAcquire(3)
	require.NoError(t, err)
	require.Len(t, bufs, 3)
}

func TestBufferPool_SizeIsPaddedToAlignment(t *testing.T) {
	p := NewBufferPool(1, 10, 8)
	bufs, err := p.TryAcquire(1)
	require.NoError(t, err)
	require.Len(t, bufs[0].Bytes(), 16)
}
