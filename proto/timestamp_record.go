package proto

import (
	"github.com/dls-controls/fa-archiver/endian"
	"github.com/dls-controls/fa-archiver/errs"
)

// ExtendedPrefix is the one-time header written before the first
// extended-timestamp block (spec §6, "Extended-timestamp record": "Prefix
// header: {u32 block_size, u32 offset}").
type ExtendedPrefix struct {
	BlockSize uint32
	Offset    uint32
}

const ExtendedPrefixSize = 8

func (p ExtendedPrefix) Bytes() []byte {
	b := make([]byte, ExtendedPrefixSize)
	e := endian.GetLittleEndianEngine()
	e.PutUint32(b[0:4], p.BlockSize)
	e.PutUint32(b[4:8], p.Offset)
	return b
}

func ParseExtendedPrefix(data []byte) (ExtendedPrefix, error) {
	if len(data) != ExtendedPrefixSize {
		return ExtendedPrefix{}, errs.ErrBadRequest
	}
	e := endian.GetLittleEndianEngine()
	return ExtendedPrefix{BlockSize: e.Uint32(data[0:4]), Offset: e.Uint32(data[4:8])}, nil
}

// ExtendedRecord is the per-major-block record interleaved into a data
// stream under the "TE" option (spec §4.4, §6): "{timestamp, duration}"
// without id0, or "{timestamp, duration, id_zero}" with it.
type ExtendedRecord struct {
	TimestampUS uint64
	DurationUS  uint32
	IDZero      uint32
	HasIDZero   bool
}

func (r ExtendedRecord) Size() int {
	if r.HasIDZero {
		return 16
	}
	return 12
}

func (r ExtendedRecord) Bytes() []byte {
	b := make([]byte, r.Size())
	e := endian.GetLittleEndianEngine()
	e.PutUint64(b[0:8], r.TimestampUS)
	e.PutUint32(b[8:12], r.DurationUS)
	if r.HasIDZero {
		e.PutUint32(b[12:16], r.IDZero)
	}
	return b
}

func ParseExtendedRecord(data []byte, hasIDZero bool) (ExtendedRecord, error) {
	want := 12
	if hasIDZero {
		want = 16
	}
	if len(data) != want {
		return ExtendedRecord{}, errs.ErrBadRequest
	}
	e := endian.GetLittleEndianEngine()
	r := ExtendedRecord{
		TimestampUS: e.Uint64(data[0:8]),
		DurationUS:  e.Uint32(data[8:12]),
		HasIDZero:   hasIDZero,
	}
	if hasIDZero {
		r.IDZero = e.Uint32(data[12:16])
	}
	return r, nil
}
