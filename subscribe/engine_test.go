package subscribe

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/proto"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer so the test goroutine can poll its
// length while the engine's goroutine concurrently writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func TestEngine_StreamsMaskedColumns(t *testing.T) {
	buf := buffer.New(4, 2*4*frame.Size) // 2 rows, 4 ids per row
	e := NewEngine(buf, []int{0, 1, 2, 3}, 1, 16, func() uint32 { return 160 })

	sess := e.Subscribe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- sess.Run(out, nil, proto.SubscribeRequest{Mask: []int{1, 3}}) }()

	writeBlock := func(base int, ts uint64) {
		b := buf.ReserveWrite()
		for r := 0; r < 2; r++ {
			for id := 0; id < 4; id++ {
				f := frame.Frame{X: int32(base + r*4 + id), Y: 0}
				copy(b.Data[(r*4+id)*frame.Size:], f.Bytes(nil))
			}
		}
		buf.CommitWrite(false, ts)
	}

	writeBlock(0, 1000)
	writeBlock(100, 1001)

	wantLen := 1 + 2*2*2*frame.Size // header byte + 2 blocks * 2 rows * 2 masked ids
	require.Eventually(t, func() bool { return len(out.snapshot()) >= wantLen }, time.Second, 5*time.Millisecond)

	data := out.snapshot()
	require.Equal(t, byte(0), data[0])
	data = data[1:]

	row0 := frame.Decode(data[0:])
	require.Equal(t, int32(1), row0.X) // id 1, row 0, block 0
	row0b := frame.Decode(data[frame.Size:])
	require.Equal(t, int32(3), row0b.X) // id 3, row 0, block 0

	sess.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	sess.Close()
}

func TestEngine_UnknownIDFailsBeforeHeader(t *testing.T) {
	buf := buffer.New(4, 4*frame.Size)
	e := NewEngine(buf, []int{0, 1, 2, 3}, 1, 16, func() uint32 { return 160 })

	sess := e.Subscribe()
	defer sess.Close()

	out := &syncBuffer{}
	err := sess.Run(out, nil, proto.SubscribeRequest{Mask: []int{9}})
	require.ErrorIs(t, err, errs.ErrUnknownID)
	require.NotEqual(t, byte(0), out.snapshot()[0])
}
