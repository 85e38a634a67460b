// Package subscribe implements the live-stream engine of spec §4.5: a
// non-reserved reader on either the raw FA buffer or the decimated buffer,
// copying mask-selected columns to a connected client until it disconnects,
// falls behind, or the upstream producer reports a gap.
package subscribe

import (
	"errors"
	"io"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/endian"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/proto"
)

// ErrGapInSubscribedData is reported when the upstream producer posts a gap
// block while a client is subscribed (spec §4.5, "logged as 'Gap in
// subscribed data'").
var ErrGapInSubscribedData = errors.New("gap in subscribed data")

// Engine streams one buffer (FA or decimated) to subscribed clients.
// columnIDs names the id each column of a raw block belongs to, in the
// order the producer writes them: the identity sequence 0..faEntryCount-1
// for the FA buffer, or the decimator's configured id list for the
// decimated buffer.
type Engine struct {
	buf              *buffer.Buffer
	columnIDs        []int
	decimationFactor uint32
	majorSampleCount uint32
	lastDuration     func() uint32
}

// NewEngine builds a subscribe engine over buf. decimationFactor is the
// overall rate reduction this buffer represents relative to the FA rate (1
// for the raw buffer); majorSampleCount and lastDuration expose the
// archive's own block-size and IIR-smoothed duration, the two external
// quantities the duration formula below needs.
func NewEngine(buf *buffer.Buffer, columnIDs []int, decimationFactor, majorSampleCount uint32, lastDuration func() uint32) *Engine {
	return &Engine{buf: buf, columnIDs: columnIDs, decimationFactor: decimationFactor, majorSampleCount: majorSampleCount, lastDuration: lastDuration}
}

func (e *Engine) columnIndices(mask []int) ([]int, error) {
	pos := make(map[int]int, len(e.columnIDs))
	for i, id := range e.columnIDs {
		pos[id] = i
	}
	out := make([]int, len(mask))
	for i, id := range mask {
		idx, ok := pos[id]
		if !ok {
			return nil, errs.ErrUnknownID
		}
		out[i] = idx
	}
	return out, nil
}

func (e *Engine) id0Index() int {
	for i, id := range e.columnIDs {
		if id == 0 {
			return i
		}
	}
	return -1
}

// Session is one client's non-reserved reader on the engine's buffer (spec
// §4.5, "open a non-reserved reader on the chosen buffer at the current
// write index"). The server's per-connection handler calls Stop to end the
// subscription on client disconnect and Close once Run has returned.
type Session struct {
	engine *Engine
	reader *buffer.Reader
}

// Subscribe opens a new session: one reader attached at the buffer's
// current write index.
func (e *Engine) Subscribe() *Session {
	return &Session{engine: e, reader: e.buf.OpenReader(false)}
}

// Stop interrupts the session's blocking read, causing Run to return.
func (s *Session) Stop() { s.reader.Interrupt() }

// Close detaches the session's reader from the buffer. Call after Run
// returns.
func (s *Session) Close() { s.reader.Close() }

// Run streams req's mask-selected columns to w until the client
// disconnects (a write error), the reader overruns, an upstream gap is
// observed, or Stop is called. corker, if non-nil, is uncorked once the
// header has been written (spec §4.5, "U uncorks the socket after the
// header").
func (s *Session) Run(w io.Writer, corker Corker, req proto.SubscribeRequest) error {
	e := s.engine
	reader := s.reader

	cols, err := e.columnIndices(req.Mask)
	if err != nil {
		io.WriteString(w, err.Error()+"\n")
		return err
	}

	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}
	if corker != nil {
		if err := corker.Uncork(); err != nil {
			return err
		}
	}

	rowBytes := len(e.columnIDs) * frame.Size
	line := make([]byte, 0, len(cols)*frame.Size+4)
	wroteInitial := false

	for {
		blk, err := reader.Read()
		switch {
		case errors.Is(err, errs.ErrReaderInterrupted):
			return nil
		case errors.Is(err, errs.ErrReaderOverrun):
			return errs.ErrWriteUnderrun
		case errors.Is(err, errs.ErrGapInStream):
			reader.Release()
			return ErrGapInSubscribedData
		case err != nil:
			return err
		}

		numRows := 0
		if rowBytes > 0 {
			numRows = len(blk.Data) / rowBytes
		}

		if req.Options.ExtendedTimestamp || (req.Options.InitialTimestamp && !wroteInitial) {
			rec := e.blockRecord(blk.TimestampUS, uint32(numRows), req.Options.IncludeID0, blk.Data)
			if _, err := w.Write(rec.Bytes()); err != nil {
				reader.Release()
				return err
			}
		}
		wroteInitial = true

		for r := 0; r < numRows; r++ {
			line = line[:0]
			rowStart := r * rowBytes
			for _, c := range cols {
				off := rowStart + c*frame.Size
				line = append(line, blk.Data[off:off+frame.Size]...)
			}
			if req.Options.IncludeID0 {
				if idx := e.id0Index(); idx >= 0 {
					f := frame.Decode(blk.Data[rowStart+idx*frame.Size:])
					line = endian.GetLittleEndianEngine().AppendUint32(line, uint32(f.X))
				}
			}
			if _, err := w.Write(line); err != nil {
				reader.Release()
				return err
			}
		}

		if !reader.Release() {
			return errs.ErrWriteUnderrun
		}
	}
}

// blockRecord computes one block's extended-timestamp record (spec §4.5,
// "duration derived from last_duration · (block_size · decimation) /
// major_sample_count", timestamp referring to the block's first sample).
func (e *Engine) blockRecord(timestampUS uint64, blockSize uint32, includeID0 bool, data []byte) proto.ExtendedRecord {
	rec := proto.ExtendedRecord{TimestampUS: timestampUS, HasIDZero: includeID0}
	if e.majorSampleCount > 0 && e.lastDuration != nil {
		rec.DurationUS = uint32(uint64(e.lastDuration()) * uint64(blockSize) * uint64(e.decimationFactor) / uint64(e.majorSampleCount))
	}
	if includeID0 {
		if idx := e.id0Index(); idx >= 0 {
			rec.IDZero = uint32(frame.Decode(data[idx*frame.Size:]).X)
		}
	}
	return rec
}
