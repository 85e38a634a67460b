package transform

import (
	"path/filepath"
	"testing"

	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/stretchr/testify/require"
)

// buildTestContext creates a 2-major-block archive for ids {2} out of a
// 4-entry stream, with a 16-row major block, first decimation by 4 and
// second decimation by 4 (so one DD sample covers an entire major block).
func buildTestContext(t *testing.T) *archive.Context {
	t.Helper()
	layout, err := archive.NewLayout(4, []int{2}, 16, 2, 2, 2)
	require.NoError(t, err)

	ctx, err := archive.NewTestContext(filepath.Join(t.TempDir(), "archive.dat"), layout)
	require.NoError(t, err)

	// Full IIR weight makes the smoothed duration equal the raw regression
	// fit for the first block, so the expected value is not entangled with
	// the cold-start ramp of the running average.
	ctx.Header().TimestampIIRWeight = 1.0

	return ctx
}

func TestPipeline_RegularStream(t *testing.T) {
	ctx := buildTestContext(t)

	bufA := make([]byte, ctx.Layout.MajorBlockSize)
	bufB := make([]byte, ctx.Layout.MajorBlockSize)
	var submitted []uint32
	p := NewPipeline(ctx, bufA, bufB, func(n uint32, buf []byte) error {
		submitted = append(submitted, n)
		return ctx.WriteMajorBlock(n, buf)
	})

	const rowsPerBlock = 2
	const faEntryCount = 4
	row := 0
	for block := 0; block < 16; block++ { // 16 input blocks * 2 rows = 32 rows = 2 major blocks
		data := make([]byte, rowsPerBlock*faEntryCount*frame.Size)
		for r := 0; r < rowsPerBlock; r++ {
			for id := 0; id < faEntryCount; id++ {
				f := frame.Frame{X: int32(row), Y: -int32(row)}
				copy(data[(r*faEntryCount+id)*frame.Size:], f.Bytes(nil))
			}
			row++
		}
		ts := uint64(1_000_000 + 20*block)
		require.NoError(t, p.Feed(ts, false, data))
	}

	require.Equal(t, []uint32{0, 1}, submitted)

	entry0, err := ctx.ReadIndexEntry(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), entry0.TimestampUS)
	require.Equal(t, uint32(160), entry0.DurationUS)
	require.Equal(t, uint32(0), entry0.IDZero)

	entry1, err := ctx.ReadIndexEntry(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_160), entry1.TimestampUS)
	require.Equal(t, uint32(16), entry1.IDZero)

	require.Equal(t, uint32(0), ctx.Header().CurrentMajorBlock)

	// Raw segment for id index 0 (archived id 2), row 0 of block 0.
	raw := make([]byte, frame.Size)
	require.NoError(t, ctx.PreadMajor(0, ctx.Layout.RawOffset(0), raw))
	require.Equal(t, frame.Frame{X: 0, Y: 0}, frame.Decode(raw))

	dd := ctx.ReadDDSamples(0, 0, 1)
	require.Len(t, dd, 1)
	require.Equal(t, int32(8), dd[0].Mean.X)
	require.Equal(t, int32(-8), dd[0].Mean.Y)
	require.Equal(t, int32(0), dd[0].Min.X)
	require.Equal(t, int32(15), dd[0].Max.X)
	require.Equal(t, int32(5), dd[0].Std.X)
}
