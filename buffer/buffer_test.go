package buffer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/stretchr/testify/require"
)

func TestReserveCommitRead(t *testing.T) {
	b := buffer.New(4, 16)
	r := b.OpenReader(false)
	defer r.Close()

	blk := b.ReserveWrite()
	copy(blk.Data, []byte("hello world12345"))
	b.CommitWrite(false, 42)

	got, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.TimestampUS)
	require.True(t, r.Release())
}

func TestGapIsReported(t *testing.T) {
	b := buffer.New(4, 16)
	r := b.OpenReader(false)
	defer r.Close()

	b.ReserveWrite()
	b.CommitWrite(true, 1)

	_, err := r.Read()
	require.ErrorIs(t, err, errs.ErrGapInStream)
	require.True(t, r.Release())
}

func TestNonReservedReaderOverrun(t *testing.T) {
	b := buffer.New(2, 8)
	r := b.OpenReader(false)
	defer r.Close()

	for i := 0; i < 5; i++ {
		b.ReserveWrite()
		b.CommitWrite(false, uint64(i))
	}

	_, err := r.Read()
	require.ErrorIs(t, err, errs.ErrReaderOverrun)
}

func TestReservedReaderBlocksWriter(t *testing.T) {
	b := buffer.New(2, 8)
	r := b.OpenReader(true)
	defer r.Close()

	b.ReserveWrite()
	b.CommitWrite(false, 1)
	b.ReserveWrite()
	b.CommitWrite(false, 2)

	done := make(chan struct{})
	go func() {
		b.ReserveWrite()
		b.CommitWrite(false, 3) // would overrun the reserved reader; must block
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("writer committed a third block while reserved reader still lagged by BlockCount")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := r.Read()
	require.NoError(t, err)
	require.True(t, r.Release())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer never unblocked after reserved reader advanced")
	}
}

func TestInterrupt(t *testing.T) {
	b := buffer.New(4, 8)
	r := b.OpenReader(false)
	defer r.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		_, readErr = r.Read()
	}()

	time.Sleep(20 * time.Millisecond)
	r.Interrupt()
	wg.Wait()

	require.ErrorIs(t, readErr, errs.ErrReaderInterrupted)
}

func TestWithWriteDisabled_BlocksFirstReserveUntilEnabled(t *testing.T) {
	b := buffer.New(2, 8, buffer.WithWriteDisabled())

	done := make(chan *buffer.Block, 1)
	go func() { done <- b.ReserveWrite() }()

	select {
	case <-done:
		t.Fatal("ReserveWrite returned before the buffer was write-enabled")
	case <-time.After(20 * time.Millisecond):
	}

	b.SetWriteEnable(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReserveWrite never unblocked after SetWriteEnable(true)")
	}
}
