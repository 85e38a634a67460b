package section

import (
	"github.com/dls-controls/fa-archiver/endian"
	"github.com/dls-controls/fa-archiver/errs"
)

// Entry is one data index entry (spec §3, "Data index entry"): 16 bytes
// describing a single major block's timing and integrity anchor. One Entry
// exists per major block, stored contiguously in the archive's index area.
type Entry struct {
	// TimestampUS is the timestamp of the first sample in the block, in
	// microseconds since the Unix epoch. Offset 0, 8 bytes.
	TimestampUS uint64
	// DurationUS is the least-squares-estimated span of the block in
	// microseconds. Offset 8, 4 bytes.
	DurationUS uint32
	// IDZero is site 0's x value at the start of the block, used as a
	// secondary integrity check (spec glossary, "id0"). Offset 12, 4 bytes.
	IDZero uint32
}

// Valid reports whether the entry has a nonzero duration, i.e. its block
// has been completed at least once (spec §3 invariants: "every other block
// with nonzero duration is valid"). It does not exclude the block currently
// being written, which keeps its previous entry until it is finalised
// again; readers skip that block separately.
func (e Entry) Valid() bool {
	return e.DurationUS != 0
}

// Bytes serialises the entry to format.IndexEntrySize little-endian bytes.
func (e Entry) Bytes() []byte {
	b := make([]byte, 16)
	eng := endian.GetLittleEndianEngine()
	eng.PutUint64(b[0:8], e.TimestampUS)
	eng.PutUint32(b[8:12], e.DurationUS)
	eng.PutUint32(b[12:16], e.IDZero)
	return b
}

// ParseEntry decodes one index entry from a 16-byte slice.
func ParseEntry(data []byte) (Entry, error) {
	if len(data) != 16 {
		return Entry{}, errs.ErrInvalidHeaderSize
	}
	eng := endian.GetLittleEndianEngine()
	return Entry{
		TimestampUS: eng.Uint64(data[0:8]),
		DurationUS:  eng.Uint32(data[8:12]),
		IDZero:      eng.Uint32(data[12:16]),
	}, nil
}

// ContiguousWith reports whether `next` may immediately follow e without a
// gap boundary, per spec §3's consecutive-block invariant. checkIDZero
// enables the additional id0-step check used by the "CZ" read option.
func (e Entry) ContiguousWith(next Entry, majorSampleCount uint32, maxDeltaT uint32, checkIDZero bool) bool {
	expected := e.TimestampUS + uint64(e.DurationUS)
	var delta int64
	if next.TimestampUS >= expected {
		delta = int64(next.TimestampUS - expected)
	} else {
		delta = int64(expected - next.TimestampUS)
	}
	if delta > int64(maxDeltaT) {
		return false
	}
	if checkIDZero && next.IDZero != e.IDZero+majorSampleCount {
		return false
	}
	return true
}
