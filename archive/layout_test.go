package archive

import (
	"testing"

	"github.com/dls-controls/fa-archiver/format"
	"github.com/stretchr/testify/require"
)

func TestNewLayout_RejectsNonPowerOfTwoFAEntryCount(t *testing.T) {
	_, err := NewLayout(3, []int{0}, 16, 1, 1, 4)
	require.Error(t, err)
}

func TestNewLayout_RejectsDecimationNotDividingMajorSampleCount(t *testing.T) {
	_, err := NewLayout(4, []int{0}, 16, 5, 0, 4)
	require.Error(t, err)
}

func TestNewLayout_ComputesDSampleCountsFromDecimationLog2(t *testing.T) {
	l, err := NewLayout(4, []int{0, 1}, 64, 2, 3, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(16), l.DSampleCount)  // 64 >> 2
	require.Equal(t, uint32(2), l.DDSampleCount)  // 64 >> (2+3)
	require.Equal(t, uint64(2*8), l.DDTotalCount) // dd_sample_count * major_block_count
}

func TestNewLayout_AreasAreDisjointAndPageAligned(t *testing.T) {
	l, err := NewLayout(4, []int{0, 1, 2}, 64, 1, 1, 4)
	require.NoError(t, err)

	require.Equal(t, uint64(4096), l.IndexDataStart)
	require.Zero(t, l.IndexDataStart%4096)
	require.Zero(t, l.IndexDataSize%4096)
	require.Zero(t, l.DDDataSize%4096)

	require.Equal(t, l.IndexDataStart+l.IndexDataSize, l.DDDataStart)
	require.Equal(t, l.DDDataStart+l.DDDataSize, l.MajorDataStart)
	require.Equal(t, l.MajorDataStart, l.MappedSize())
	require.Equal(t, l.MajorDataStart+l.TotalDataSize, l.FileSize())
}

func TestNewLayout_MajorBlockOffsetsAreContiguousAndNonOverlapping(t *testing.T) {
	l, err := NewLayout(4, []int{0, 1}, 16, 1, 1, 4)
	require.NoError(t, err)

	for n := uint32(0); n < l.MajorBlockCount; n++ {
		require.Equal(t, l.MajorDataStart+uint64(n)*l.MajorBlockSize, l.MajorBlockOffset(n))
	}
}

func TestLayout_RawAndDOffsetsAreOrderedPerID(t *testing.T) {
	l, err := NewLayout(4, []int{0, 1, 2}, 16, 1, 1, 4)
	require.NoError(t, err)

	for idx := 0; idx < len(l.ArchiveIDs); idx++ {
		raw := l.RawOffset(idx)
		d := l.DOffset(idx)
		require.Less(t, raw, d)
		if idx+1 < len(l.ArchiveIDs) {
			require.LessOrEqual(t, d, l.RawOffset(idx+1))
		}
	}
}

func TestLayout_DDOffsetSeparatesIDsByDDTotalCount(t *testing.T) {
	l, err := NewLayout(4, []int{0, 1}, 64, 2, 2, 4)
	require.NoError(t, err)

	first := l.DDOffset(0, 0)
	second := l.DDOffset(1, 0)
	require.Equal(t, l.DDTotalCount, (second-first)/uint64(format.DecimatedSampleSize))
}
