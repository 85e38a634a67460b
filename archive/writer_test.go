package archive

import (
	"sync"
	"testing"
	"time"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/stretchr/testify/require"
)

func TestWriter_DrainsAndStops(t *testing.T) {
	buf := buffer.New(4, 8)

	var mu sync.Mutex
	var fed []uint64
	var gaps int
	w := NewWriter(buf, func(ts uint64, gap bool, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if gap {
			gaps++
			return errs.ErrGapInStream
		}
		fed = append(fed, ts)
		return nil
	})

	for i := 0; i < 3; i++ {
		blk := buf.ReserveWrite()
		blk.Data[0] = byte(i)
		buf.CommitWrite(false, uint64(1000+i))
	}
	blk := buf.ReserveWrite()
	_ = blk
	buf.CommitWrite(true, 0) // gap block

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fed) == 3 && gaps == 1
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)
	w.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{1000, 1001, 1002}, fed)
	require.Equal(t, 1, gaps)
}
