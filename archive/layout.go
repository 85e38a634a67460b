// Package archive owns the on-disk file layout, the memory-mapped header,
// index and DD areas, and the disk-writer thread that drains the FA
// circular buffer (spec §4.2, §3, §6 "Archive file"). Its shape follows the
// teacher's blob package (header + index + payload, a Parse/Bytes pair per
// section) generalised from a single self-contained blob to a long-lived,
// incrementally written file.
package archive

import (
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/section"
)

// Layout is the fully computed set of area sizes and offsets for a given
// archive configuration (spec §3 invariants). It is derived once, at
// archive creation or open time, and never changes afterwards.
type Layout struct {
	FAEntryCount         uint32
	ArchiveIDs           []int
	MajorSampleCount     uint32
	FirstDecimationLog2  uint32
	SecondDecimationLog2 uint32
	MajorBlockCount      uint32

	DSampleCount  uint32
	DDSampleCount uint32

	IndexDataStart uint64
	IndexDataSize  uint64
	DDDataStart    uint64
	DDDataSize     uint64
	MajorDataStart uint64
	MajorBlockSize uint64
	TotalDataSize  uint64

	// DDTotalCount is dd_sample_count * major_block_count per archived id
	// (spec §3, "DD area").
	DDTotalCount uint64
}

func pageAlign(n uint64) uint64 {
	if rem := n % section.PageSize; rem != 0 {
		return n + (section.PageSize - rem)
	}
	return n
}

// NewLayout computes a Layout from the archive's static configuration. It
// validates the power-of-two and divisibility constraints spec §3 requires
// before any bytes are written.
func NewLayout(faEntryCount uint32, archiveIDs []int, majorSampleCount, firstLog2, secondLog2, majorBlockCount uint32) (Layout, error) {
	if faEntryCount == 0 || faEntryCount > format.MaxFAEntryCount || faEntryCount&(faEntryCount-1) != 0 {
		return Layout{}, errs.ErrBadRequest
	}
	if majorSampleCount == 0 || majorSampleCount&(majorSampleCount-1) != 0 {
		return Layout{}, errs.ErrBadRequest
	}
	if majorSampleCount%(1<<firstLog2) != 0 || majorSampleCount%(1<<(firstLog2+secondLog2)) != 0 {
		return Layout{}, errs.ErrBadRequest
	}

	l := Layout{
		FAEntryCount:         faEntryCount,
		ArchiveIDs:           append([]int(nil), archiveIDs...),
		MajorSampleCount:     majorSampleCount,
		FirstDecimationLog2:  firstLog2,
		SecondDecimationLog2: secondLog2,
		MajorBlockCount:      majorBlockCount,
		DSampleCount:         majorSampleCount >> firstLog2,
		DDSampleCount:        majorSampleCount >> (firstLog2 + secondLog2),
	}

	maskCount := uint64(len(archiveIDs))
	l.MajorBlockSize = maskCount * (uint64(majorSampleCount)*uint64(format.FrameSize) + uint64(l.DSampleCount)*uint64(format.DecimatedSampleSize))

	l.IndexDataStart = section.PageSize
	l.IndexDataSize = pageAlign(uint64(majorBlockCount) * uint64(format.IndexEntrySize))

	l.DDDataStart = l.IndexDataStart + l.IndexDataSize
	l.DDTotalCount = uint64(l.DDSampleCount) * uint64(majorBlockCount)
	l.DDDataSize = pageAlign(l.DDTotalCount * maskCount * uint64(format.DecimatedSampleSize))

	l.MajorDataStart = l.DDDataStart + l.DDDataSize
	l.TotalDataSize = uint64(majorBlockCount) * l.MajorBlockSize

	return l, nil
}

// Header builds the disk header matching this layout.
func (l Layout) Header() *section.Header {
	h := section.NewHeader(l.FAEntryCount, l.MajorSampleCount, l.FirstDecimationLog2, l.SecondDecimationLog2, l.ArchiveIDs)
	h.IndexDataStart = l.IndexDataStart
	h.DDDataStart = l.DDDataStart
	h.MajorDataStart = l.MajorDataStart
	h.MajorBlockCount = l.MajorBlockCount
	h.MajorBlockSize = l.MajorBlockSize
	h.TotalDataSize = l.TotalDataSize
	return h
}

// MappedSize is the byte length of the header+index+DD region that stays
// memory-mapped for the process lifetime (spec §3, "Ownership and
// lifecycle"); the major data area is accessed via pread/pwrite instead.
func (l Layout) MappedSize() uint64 {
	return l.MajorDataStart
}

// FileSize is the total size the archive file must be pre-allocated to.
func (l Layout) FileSize() uint64 {
	return l.MajorDataStart + l.TotalDataSize
}

// DDOffset returns the mapped-region byte offset of the DD sample at
// (archive-relative id index, absolute sample index), where each archived
// id owns a contiguous run of DDTotalCount samples (spec §3, "DD area").
func (l Layout) DDOffset(idIndex int, sampleIndex uint64) uint64 {
	return l.DDDataStart + (uint64(idIndex)*l.DDTotalCount+sampleIndex)*uint64(format.DecimatedSampleSize)
}

// MajorBlockOffset returns the file offset of major block n.
func (l Layout) MajorBlockOffset(n uint32) uint64 {
	return l.MajorDataStart + uint64(n)*l.MajorBlockSize
}

// idSegmentSize is the per-id byte size of one major block's raw+D segment.
func (l Layout) idSegmentSize() uint64 {
	return uint64(l.MajorSampleCount)*uint64(format.FrameSize) + uint64(l.DSampleCount)*uint64(format.DecimatedSampleSize)
}

// RawOffset returns the within-block byte offset of archived-id index
// idIndex's raw FA segment (spec §3, "Major block", "each segment
// containing first the id's raw samples and then its single-decimated
// summary samples").
func (l Layout) RawOffset(idIndex int) uint64 {
	return uint64(idIndex) * l.idSegmentSize()
}

// DOffset returns the within-block byte offset of archived-id index
// idIndex's D (single-decimated) segment.
func (l Layout) DOffset(idIndex int) uint64 {
	return l.RawOffset(idIndex) + uint64(l.MajorSampleCount)*uint64(format.FrameSize)
}
