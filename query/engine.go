package query

import (
	"io"

	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/endian"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/internal/pool"
	"github.com/dls-controls/fa-archiver/proto"
	"github.com/dls-controls/fa-archiver/section"
)

// Engine is the reader/query engine of spec §4.4: it resolves a parsed read
// request against the archive and streams the result to a client
// connection, or writes a single error line on pre-flight failure.
type Engine struct {
	ctx  *archive.Context
	pool *pool.BufferPool
}

// NewEngine builds a query engine over ctx, admission-controlled by pool
// (spec §4.4 step 5, "lock archive_mask_count' buffers from the pool").
func NewEngine(ctx *archive.Context, bufPool *pool.BufferPool) *Engine {
	return &Engine{ctx: ctx, pool: bufPool}
}

// decimationLog2 returns the shift that converts an FA-rate sample count to
// the source's own rate.
func decimationLog2(src format.Source, ctx *archive.Context) uint32 {
	switch src {
	case format.SourceD:
		return ctx.Header().FirstDecimationLog2
	case format.SourceDD:
		return ctx.Header().FirstDecimationLog2 + ctx.Header().SecondDecimationLog2
	default:
		return 0
	}
}

// archiveIndices maps each requested id to its position within the
// archive's stored id list, failing with ErrUnknownID if a requested id was
// never archived (spec §4.4 step 6 implicitly requires this: only archived
// ids have on-disk segments).
func archiveIndices(ctx *archive.Context, mask []int) ([]int, error) {
	pos := make(map[int]int, len(ctx.Layout.ArchiveIDs))
	for i, id := range ctx.Layout.ArchiveIDs {
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

// Execute runs req against the archive and writes the full response to w,
// following the framing of spec §4.4 last paragraph: a single NUL byte on
// success (an error line instead on failure), then the optional sample
// count, the chosen timestamp header, the interleaved data, and an optional
// trailing aggregate-timestamp buffer.
func (e *Engine) Execute(req proto.ReadRequest, w io.Writer) error {
	archIdx, err := archiveIndices(e.ctx, req.Mask)
	if err != nil {
		io.WriteString(w, err.Error()+"\n")
		return err
	}

	result, err := e.preflight(req)
	if err != nil {
		io.WriteString(w, err.Error()+"\n")
		return err
	}

	bufs, err := e.pool.TryAcquire(len(req.Mask))
	if err != nil {
		io.WriteString(w, err.Error()+"\n")
		return err
	}
	defer e.pool.Release(bufs)

	if _, err := w.Write([]byte{0}); err != nil {
		return err
	}

	if req.Options.PrependCount {
		if err := writeUint64(w, result.sampleCount); err != nil {
			return err
		}
	}

	if req.Options.InitialTimestamp && !req.Options.ExtendedTimestamp && !req.Options.AggregateTimestamp {
		rec := proto.ExtendedRecord{
			TimestampUS: result.spans[0].timestampUS,
			DurationUS:  result.spans[0].durationUS,
			IDZero:      result.spans[0].idZero,
			HasIDZero:   req.Options.IncludeID0,
		}
		if _, err := w.Write(rec.Bytes()); err != nil {
			return err
		}
	}

	if req.Options.ExtendedTimestamp && !req.Options.AggregateTimestamp {
		prefix := proto.ExtendedPrefix{BlockSize: uint32(result.spans[0].rows), Offset: 0}
		if _, err := w.Write(prefix.Bytes()); err != nil {
			return err
		}
	}

	for _, span := range result.spans {
		if req.Options.ExtendedTimestamp && !req.Options.AggregateTimestamp {
			rec := proto.ExtendedRecord{
				TimestampUS: span.timestampUS,
				DurationUS:  span.durationUS,
				IDZero:      span.idZero,
				HasIDZero:   req.Options.IncludeID0,
			}
			if _, err := w.Write(rec.Bytes()); err != nil {
				return err
			}
		}

		if err := e.writeSpan(w, req, span, archIdx); err != nil {
			return err
		}
	}

	if req.Options.AggregateTimestamp {
		prefix := proto.ExtendedPrefix{BlockSize: uint32(result.spans[0].rows), Offset: 0}
		if _, err := w.Write(prefix.Bytes()); err != nil {
			return err
		}
		for _, span := range result.spans {
			rec := proto.ExtendedRecord{
				TimestampUS: span.timestampUS,
				DurationUS:  span.durationUS,
				IDZero:      span.idZero,
				HasIDZero:   req.Options.IncludeID0,
			}
			if _, err := w.Write(rec.Bytes()); err != nil {
				return err
			}
		}
	}

	return nil
}

// span is one major block's contribution to a resolved request: the row
// range [startRow, startRow+rows) in the source's own sample rate, plus the
// block's index-entry metadata used for timestamp headers.
type span struct {
	block       uint32
	startRow    uint32
	rows        uint32
	timestampUS uint64
	durationUS  uint32
	idZero      uint32
}

type resolved struct {
	sampleCount uint64
	spans       []span
}

// preflight runs spec §4.4 steps 1-4: resolve start/end, truncate or fail on
// range, and check contiguity. It never touches the buffer pool or writes
// any data.
func (e *Engine) preflight(req proto.ReadRequest) (*resolved, error) {
	startBlock, startOffsetFA, err := ResolveTimestamp(e.ctx, req.Start.MicrosSinceEpoch)
	if err != nil {
		return nil, err
	}

	shift := decimationLog2(req.Source, e.ctx)

	availableFA, err := AvailableSamples(e.ctx, startBlock, startOffsetFA)
	if err != nil {
		return nil, err
	}
	available := availableFA >> shift

	var requested uint64
	if req.End.IsCount {
		requested = req.End.Count
	} else {
		endBlock, endOffsetFA, err := ResolveTimestamp(e.ctx, req.End.Instant.MicrosSinceEpoch)
		if err != nil {
			return nil, err
		}
		deltaFA, err := sampleDelta(e.ctx, startBlock, startOffsetFA, endBlock, endOffsetFA)
		if err != nil {
			return nil, err
		}
		requested = deltaFA >> shift
	}

	if requested > available {
		if !req.Options.AcceptTruncated {
			return nil, errs.ErrRequestedTooLarge
		}
		requested = available
	}
	if requested == 0 {
		return nil, errs.ErrNoData
	}

	spans, err := e.buildSpans(req.Source, startBlock, startOffsetFA>>shift, requested)
	if err != nil {
		return nil, err
	}

	if req.Options.Contiguous && len(spans) > 1 {
		endBlock := spans[len(spans)-1].block
		if err := CheckContiguous(e.ctx, startBlock, endBlock, e.ctx.Layout.MajorSampleCount, req.Options.ContiguousID0); err != nil {
			return nil, err
		}
	}

	return &resolved{sampleCount: requested, spans: spans}, nil
}

// sourceSampleCount returns the number of source-rate rows a major block
// holds for the given source.
func sourceSampleCount(ctx *archive.Context, src format.Source) uint32 {
	switch src {
	case format.SourceD:
		return ctx.Layout.DSampleCount
	case format.SourceDD:
		return ctx.Layout.DDSampleCount
	default:
		return ctx.Layout.MajorSampleCount
	}
}

// buildSpans walks forward from (startBlock, startOffset) in source-rate
// units, slicing requested rows across as many consecutive major blocks as
// needed.
func (e *Engine) buildSpans(src format.Source, startBlock, startOffset uint32, requested uint64) ([]span, error) {
	n := e.ctx.Layout.MajorBlockCount
	block := startBlock
	offset := startOffset
	remaining := requested

	var spans []span
	for remaining > 0 {
		entry, err := e.ctx.ReadIndexEntry(block)
		if err != nil {
			return nil, err
		}
		perBlock := sourceSampleCount(e.ctx, src)
		avail := uint64(perBlock) - uint64(offset)
		take := avail
		if take > remaining {
			take = remaining
		}
		spans = append(spans, span{
			block:       block,
			startRow:    offset,
			rows:        uint32(take),
			timestampUS: entry.TimestampUS,
			durationUS:  entry.DurationUS,
			idZero:      entry.IDZero,
		})
		remaining -= take
		offset = 0
		block = (block + 1) % n
	}
	return spans, nil
}

// writeSpan transposes and writes one major block's worth of data for the
// requested ids (spec §4.4 step 7).
func (e *Engine) writeSpan(w io.Writer, req proto.ReadRequest, s span, archIdx []int) error {
	switch req.Source {
	case format.SourceFA:
		return e.writeFASpan(w, s, archIdx, req.Options.IncludeID0)
	case format.SourceD:
		return e.writeDecimatedSpan(w, s, archIdx, req.DataMask, e.ctx.Layout.DOffset, req.Options.IncludeID0)
	default: // format.SourceDD
		return e.writeDDSpan(w, s, archIdx, req.DataMask, req.Options.IncludeID0)
	}
}

func (e *Engine) writeFASpan(w io.Writer, s span, archIdx []int, includeID0 bool) error {
	row := make([]byte, frame.Size)
	line := make([]byte, 0, len(archIdx)*frame.Size+4)
	for r := uint32(0); r < s.rows; r++ {
		line = line[:0]
		for _, idx := range archIdx {
			off := e.ctx.Layout.RawOffset(idx) + uint64(s.startRow+r)*uint64(frame.Size)
			if err := e.ctx.PreadMajor(s.block, off, row); err != nil {
				return err
			}
			line = append(line, row...)
		}
		if includeID0 {
			line = appendID0(line, e.ctx, s.block, s.startRow+r)
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeDecimatedSpan(w io.Writer, s span, archIdx []int, mask section.DataMask, dOff func(int) uint64, includeID0 bool) error {
	sampleBuf := make([]byte, format.DecimatedSampleSize)
	line := make([]byte, 0, len(archIdx)*format.DecimatedSampleSize)
	for r := uint32(0); r < s.rows; r++ {
		line = line[:0]
		for _, idx := range archIdx {
			off := dOff(idx) + uint64(s.startRow+r)*uint64(format.DecimatedSampleSize)
			if err := e.ctx.PreadMajor(s.block, off, sampleBuf); err != nil {
				return err
			}
			sample := section.DecodeDecimatedSample(sampleBuf)
			line = sample.Select(line, mask)
		}
		if includeID0 {
			line = appendID0(line, e.ctx, s.block, (s.startRow+r)<<e.ctx.Header().FirstDecimationLog2)
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeDDSpan(w io.Writer, s span, archIdx []int, mask section.DataMask, includeID0 bool) error {
	line := make([]byte, 0, len(archIdx)*format.DecimatedSampleSize)
	for r := uint32(0); r < s.rows; r++ {
		line = line[:0]
		sampleIndex := uint64(s.block)*uint64(e.ctx.Layout.DDSampleCount) + uint64(s.startRow+r)
		for _, idx := range archIdx {
			samples := e.ctx.ReadDDSamples(idx, sampleIndex, 1)
			line = samples[0].Select(line, mask)
		}
		if includeID0 {
			rawRow := (s.startRow + r) << (e.ctx.Header().FirstDecimationLog2 + e.ctx.Header().SecondDecimationLog2)
			line = appendID0(line, e.ctx, s.block, rawRow)
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// appendID0 appends site 0's raw x value at FA-rate row rawRow (spec §4.4
// options, "Z"); id 0 must itself be archived for this to resolve.
func appendID0(buf []byte, ctx *archive.Context, block uint32, rawRow uint32) []byte {
	idx := -1
	for i, id := range ctx.Layout.ArchiveIDs {
		if id == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return buf
	}
	row := make([]byte, frame.Size)
	off := ctx.Layout.RawOffset(idx) + uint64(rawRow)*uint64(frame.Size)
	if err := ctx.PreadMajor(block, off, row); err != nil {
		return buf
	}
	f := frame.Decode(row)
	return endian.GetLittleEndianEngine().AppendUint32(buf, uint32(f.X))
}

func writeUint64(w io.Writer, v uint64) error {
	eng := endian.GetLittleEndianEngine()
	_, err := w.Write(eng.AppendUint64(nil, v))
	return err
}

// sampleDelta returns the number of FA-rate samples between two resolved
// (block, offset) positions, walking the rotated oldest-to-newest view
// built by orderedEntries.
func sampleDelta(ctx *archive.Context, startBlock, startOffset, endBlock, endOffset uint32) (uint64, error) {
	entries, err := orderedEntries(ctx)
	if err != nil {
		return 0, err
	}
	startIdx, endIdx := -1, -1
	for i, e := range entries {
		if e.block == startBlock {
			startIdx = i
		}
		if e.block == endBlock {
			endIdx = i
		}
	}
	if startIdx < 0 || endIdx < 0 || endIdx < startIdx {
		return 0, errs.ErrBadRequest
	}
	if startIdx == endIdx {
		if endOffset < startOffset {
			return 0, errs.ErrBadRequest
		}
		return uint64(endOffset - startOffset), nil
	}
	total := uint64(ctx.Layout.MajorSampleCount) - uint64(startOffset)
	for i := startIdx + 1; i < endIdx; i++ {
		total += uint64(ctx.Layout.MajorSampleCount)
	}
	total += uint64(endOffset)
	return total, nil
}
