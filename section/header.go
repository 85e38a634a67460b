package section

import (
	"bytes"

	"github.com/dls-controls/fa-archiver/endian"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
)

// Header is the fixed 4096-byte prefix of an archive file (spec §3, "Disk
// header"). Every area offset recorded here is page-aligned; Validate
// enforces that along with the signature/version/size checks required
// before a reader or writer may trust the rest of the file.
type Header struct {
	// Signature identifies the file as an FA archive. Offset 0, 4 bytes.
	Signature [4]byte
	// Version is compared against format.DiskVersion on open. Offset 4, 4 bytes.
	Version uint32

	// ArchiveMask is the bitset of ids persisted to disk (spec §3, "Filter
	// mask"). Offset 8, 32 bytes (256 bits, one per possible id).
	ArchiveMask [format.MaxFAEntryCount / 8]byte
	// ArchiveMaskCount is the number of set bits in ArchiveMask.
	ArchiveMaskCount uint32

	// FAEntryCount is N, the number of (x,y) pairs per FA row.
	FAEntryCount uint32
	// InputBlockSize is the byte size of one block from the frame source.
	InputBlockSize uint32
	// MajorSampleCount is the number of FA rows per major block.
	MajorSampleCount uint32
	// FirstDecimationLog2 and SecondDecimationLog2 are the log2 decimation
	// factors applied to produce D and DD samples respectively.
	FirstDecimationLog2  uint32
	SecondDecimationLog2 uint32

	// TimestampIIRWeight is alpha in last_duration <- round(alpha*duration +
	// (1-alpha)*last_duration) (spec §4.3 step 5).
	TimestampIIRWeight float64

	// IndexDataStart, DDDataStart, MajorDataStart are page-aligned byte
	// offsets of the three variable-size areas that follow the header.
	IndexDataStart uint64
	DDDataStart    uint64
	MajorDataStart uint64

	// MajorBlockCount is the number of major blocks the archive holds; the
	// ring wraps modulo this value.
	MajorBlockCount uint32
	// MajorBlockSize is the byte size of one major block on disk.
	MajorBlockSize uint64
	// TotalDataSize is the total byte size of the major data area.
	TotalDataSize uint64

	// CurrentMajorBlock is the block index currently being written; it is
	// never valid for reads (spec §3 invariants).
	CurrentMajorBlock uint32
	// LastDuration is the IIR-smoothed block duration in microseconds.
	LastDuration uint32

	// EventsFAID, if >= 0, names the id whose decimation statistics are
	// replaced by a bitwise OR of the inputs (spec §4.3, "Event-code
	// handling"). -1 means no events id configured.
	EventsFAID int32
}

// PageSize is the alignment unit for every archive area offset.
const PageSize = 4096

// NewHeader builds a Header for a freshly initialised archive. Callers must
// still set area offsets once the layout is computed (see archive.Layout).
func NewHeader(faEntryCount, majorSampleCount, firstLog2, secondLog2 uint32, archiveMask []int) *Header {
	h := &Header{
		Version:              format.DiskVersion,
		FAEntryCount:         faEntryCount,
		MajorSampleCount:     majorSampleCount,
		FirstDecimationLog2:  firstLog2,
		SecondDecimationLog2: secondLog2,
		TimestampIIRWeight:   0.01,
		EventsFAID:           -1,
	}
	copy(h.Signature[:], format.DiskSignature)
	h.SetArchiveMask(archiveMask)

	return h
}

// SetArchiveMask sets the archive mask bitset from a list of ids and updates
// ArchiveMaskCount.
func (h *Header) SetArchiveMask(ids []int) {
	h.ArchiveMask = [format.MaxFAEntryCount / 8]byte{}
	for _, id := range ids {
		h.ArchiveMask[id/8] |= 1 << uint(id%8)
	}
	h.ArchiveMaskCount = uint32(len(ids))
}

// ArchiveIDs returns the sorted list of ids set in ArchiveMask.
func (h *Header) ArchiveIDs() []int {
	ids := make([]int, 0, h.ArchiveMaskCount)
	for i := 0; i < int(h.FAEntryCount); i++ {
		if h.ArchiveMask[i/8]&(1<<uint(i%8)) != 0 {
			ids = append(ids, i)
		}
	}
	return ids
}

// DSampleCount is the number of D (single-decimated) samples per major block
// per id: major_sample_count / 2^first_decimation_log2.
func (h *Header) DSampleCount() uint32 {
	return h.MajorSampleCount >> h.FirstDecimationLog2
}

// DDSampleCount is the number of DD (double-decimated) samples per major
// block per id.
func (h *Header) DDSampleCount() uint32 {
	return h.MajorSampleCount >> (h.FirstDecimationLog2 + h.SecondDecimationLog2)
}

// Validate checks the invariants spec §8 requires of a freshly initialised
// or freshly opened archive: signature, version, page alignment of every
// area, and a current-block index within range.
func (h *Header) Validate() error {
	if !bytes.Equal(h.Signature[:], []byte(format.DiskSignature)) {
		return errs.ErrBadSignature
	}
	if h.Version != format.DiskVersion {
		return errs.ErrBadVersion
	}
	for _, off := range []uint64{h.IndexDataStart, h.DDDataStart, h.MajorDataStart} {
		if off%PageSize != 0 {
			return errs.ErrNotPageAligned
		}
	}
	if h.MajorBlockCount == 0 || h.CurrentMajorBlock >= h.MajorBlockCount {
		return errs.ErrBlockIndexOutOfRange
	}

	wantMajorBlockSize := uint64(h.ArchiveMaskCount) * (uint64(h.MajorSampleCount)*uint64(format.FrameSize) + uint64(h.DSampleCount())*uint64(format.DecimatedSampleSize))
	if wantMajorBlockSize != h.MajorBlockSize {
		return errs.ErrSizeMismatch
	}
	if h.TotalDataSize != uint64(h.MajorBlockCount)*h.MajorBlockSize {
		return errs.ErrSizeMismatch
	}

	return nil
}

// Bytes serialises the header into a HeaderSize-byte little-endian buffer.
// Only the fields enumerated here round-trip through disk; ephemeral
// in-memory-only bookkeeping (none currently) would be excluded the same
// way mebo's section headers exclude derived lengths.
func (h *Header) Bytes() []byte {
	b := make([]byte, format.HeaderSize)
	e := endian.GetLittleEndianEngine()

	copy(b[0:4], h.Signature[:])
	e.PutUint32(b[4:8], h.Version)
	copy(b[8:8+format.MaxFAEntryCount/8], h.ArchiveMask[:])
	off := 8 + format.MaxFAEntryCount/8
	e.PutUint32(b[off:off+4], h.ArchiveMaskCount)
	e.PutUint32(b[off+4:off+8], h.FAEntryCount)
	e.PutUint32(b[off+8:off+12], h.InputBlockSize)
	e.PutUint32(b[off+12:off+16], h.MajorSampleCount)
	e.PutUint32(b[off+16:off+20], h.FirstDecimationLog2)
	e.PutUint32(b[off+20:off+24], h.SecondDecimationLog2)
	e.PutUint64(b[off+24:off+32], float64bits(h.TimestampIIRWeight))
	e.PutUint64(b[off+32:off+40], h.IndexDataStart)
	e.PutUint64(b[off+40:off+48], h.DDDataStart)
	e.PutUint64(b[off+48:off+56], h.MajorDataStart)
	e.PutUint32(b[off+56:off+60], h.MajorBlockCount)
	e.PutUint64(b[off+60:off+68], h.MajorBlockSize)
	e.PutUint64(b[off+68:off+76], h.TotalDataSize)
	e.PutUint32(b[off+76:off+80], h.CurrentMajorBlock)
	e.PutUint32(b[off+80:off+84], h.LastDuration)
	e.PutUint32(b[off+84:off+88], uint32(h.EventsFAID))

	return b
}

// Parse decodes a header from a HeaderSize-byte buffer produced by Bytes.
func (h *Header) Parse(data []byte) error {
	if len(data) != format.HeaderSize {
		return errs.ErrInvalidHeaderSize
	}
	e := endian.GetLittleEndianEngine()

	copy(h.Signature[:], data[0:4])
	h.Version = e.Uint32(data[4:8])
	copy(h.ArchiveMask[:], data[8:8+format.MaxFAEntryCount/8])
	off := 8 + format.MaxFAEntryCount/8
	h.ArchiveMaskCount = e.Uint32(data[off : off+4])
	h.FAEntryCount = e.Uint32(data[off+4 : off+8])
	h.InputBlockSize = e.Uint32(data[off+8 : off+12])
	h.MajorSampleCount = e.Uint32(data[off+12 : off+16])
	h.FirstDecimationLog2 = e.Uint32(data[off+16 : off+20])
	h.SecondDecimationLog2 = e.Uint32(data[off+20 : off+24])
	h.TimestampIIRWeight = float64frombits(e.Uint64(data[off+24 : off+32]))
	h.IndexDataStart = e.Uint64(data[off+32 : off+40])
	h.DDDataStart = e.Uint64(data[off+40 : off+48])
	h.MajorDataStart = e.Uint64(data[off+48 : off+56])
	h.MajorBlockCount = e.Uint32(data[off+56 : off+60])
	h.MajorBlockSize = e.Uint64(data[off+60 : off+68])
	h.TotalDataSize = e.Uint64(data[off+68 : off+76])
	h.CurrentMajorBlock = e.Uint32(data[off+76 : off+80])
	h.LastDuration = e.Uint32(data[off+80 : off+84])
	h.EventsFAID = int32(e.Uint32(data[off+84 : off+88]))

	return h.Validate()
}
