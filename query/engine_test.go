package query

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/internal/pool"
	"github.com/dls-controls/fa-archiver/proto"
	"github.com/dls-controls/fa-archiver/section"
	"github.com/stretchr/testify/require"
)

// buildArchive creates a single-archived-id (id 2 of 4) archive with block 0
// fully written and valid, and block 1 as the block currently being
// written (so only block 0 is readable), matching the shape exercised by
// the block transform's own tests.
func buildArchive(t *testing.T) *archive.Context {
	t.Helper()
	layout, err := archive.NewLayout(4, []int{2}, 16, 2, 2, 2)
	require.NoError(t, err)

	ctx, err := archive.NewTestContext(filepath.Join(t.TempDir(), "archive.dat"), layout)
	require.NoError(t, err)
	ctx.Header().CurrentMajorBlock = 1

	require.NoError(t, ctx.WriteIndexEntry(0, section.Entry{TimestampUS: 1_000_000, DurationUS: 160, IDZero: 0}))

	block := make([]byte, layout.MajorBlockSize)
	for row := 0; row < 16; row++ {
		f := frame.Frame{X: int32(row), Y: -int32(row)}
		copy(block[uint64(row)*frame.Size:], f.Bytes(nil))
	}
	require.NoError(t, ctx.WriteMajorBlock(0, block))

	return ctx
}

func TestEngine_ReadsFARangeByCount(t *testing.T) {
	ctx := buildArchive(t)
	bufPool := pool.NewBufferPool(4, 64, 0)
	e := NewEngine(ctx, bufPool)

	req := proto.ReadRequest{
		Source: format.SourceFA,
		Mask:   []int{2},
		Start:  proto.TimestampSpec{MicrosSinceEpoch: 1_000_000},
		End:    proto.EndSpec{IsCount: true, Count: 5},
	}

	var out bytes.Buffer
	require.NoError(t, e.Execute(req, &out))

	data := out.Bytes()
	require.Equal(t, byte(0), data[0])
	data = data[1:]
	require.Len(t, data, 5*frame.Size)

	for row := 0; row < 5; row++ {
		f := frame.Decode(data[row*frame.Size:])
		require.Equal(t, int32(row), f.X)
		require.Equal(t, -int32(row), f.Y)
	}
}

func TestEngine_UnknownIDFailsPreflight(t *testing.T) {
	ctx := buildArchive(t)
	bufPool := pool.NewBufferPool(4, 64, 0)
	e := NewEngine(ctx, bufPool)

	req := proto.ReadRequest{
		Source: format.SourceFA,
		Mask:   []int{3},
		Start:  proto.TimestampSpec{MicrosSinceEpoch: 1_000_000},
		End:    proto.EndSpec{IsCount: true, Count: 5},
	}

	var out bytes.Buffer
	err := e.Execute(req, &out)
	require.Error(t, err)
	require.NotEqual(t, byte(0), out.Bytes()[0])
}

func TestEngine_RequestBeyondAvailableFailsWithoutAcceptTruncated(t *testing.T) {
	ctx := buildArchive(t)
	bufPool := pool.NewBufferPool(4, 64, 0)
	e := NewEngine(ctx, bufPool)

	req := proto.ReadRequest{
		Source: format.SourceFA,
		Mask:   []int{2},
		Start:  proto.TimestampSpec{MicrosSinceEpoch: 1_000_000},
		End:    proto.EndSpec{IsCount: true, Count: 1000},
	}

	var out bytes.Buffer
	err := e.Execute(req, &out)
	require.Error(t, err)
}
