// Package frame defines the basic (x, y) sample unit shared by every layer
// of the archiver: the circular buffer, the block transform, the archive
// file, and the wire protocol all move data as frames or fixed-size rows of
// frames (spec §3, "Frame", "FA row").
package frame

import "github.com/dls-controls/fa-archiver/endian"

// Size is the on-disk and on-wire byte size of one Frame.
const Size = 8

// Frame is a single (x, y) BPM reading.
type Frame struct {
	X int32
	Y int32
}

// Bytes appends the frame's little-endian encoding to buf and returns the
// extended slice, matching the teacher's Append-style encoding helpers
// (endian.EndianEngine.AppendUint32) rather than allocating per frame.
func (f Frame) Bytes(buf []byte) []byte {
	eng := endian.GetLittleEndianEngine()
	buf = eng.AppendUint32(buf, uint32(f.X))
	buf = eng.AppendUint32(buf, uint32(f.Y))
	return buf
}

// Decode reads one frame from the front of data.
func Decode(data []byte) Frame {
	eng := endian.GetLittleEndianEngine()
	return Frame{
		X: int32(eng.Uint32(data[0:4])),
		Y: int32(eng.Uint32(data[4:8])),
	}
}

// Row is one FA sample instant: one frame per monitored site, ordered by
// id. Row byte size is Size * len(Row).
type Row []Frame

// DecodeRow decodes n frames from the front of data.
func DecodeRow(data []byte, n int) Row {
	row := make(Row, n)
	for i := 0; i < n; i++ {
		row[i] = Decode(data[i*Size:])
	}
	return row
}

// Bytes encodes the row in id order.
func (r Row) Bytes() []byte {
	buf := make([]byte, 0, len(r)*Size)
	for _, f := range r {
		buf = f.Bytes(buf)
	}
	return buf
}
