// Package transform implements the block transform pipeline of spec §4.3:
// per incoming input block, it transposes archived-id columns into the
// current major block's raw segment, computes single- and
// double-decimated statistics, and finalises the index entry and DD area
// once a full major block has been accumulated.
package transform

import (
	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/regression"
	"github.com/dls-controls/fa-archiver/section"
)

// SubmitFunc writes a completed major block's raw bytes to the archive
// (spec §4.2, "the writer submits the buffer to the I/O queue"). The disk
// writer supplies the concrete implementation; Pipeline only knows it needs
// to hand off a filled buffer and wait for the next one to become
// available.
type SubmitFunc func(blockIndex uint32, buf []byte) error

// Pipeline holds all per-id accumulator state for the block currently being
// assembled. One Pipeline exists per archive; it is driven exclusively by
// the disk-writer thread (spec §5, "Threads ... disk-writer thread").
type Pipeline struct {
	ctx    *archive.Context
	submit SubmitFunc

	ids     []int
	idIndex map[int]int

	faEntryCount     int
	majorSampleCount uint32
	firstWindow      int
	secondWindow     int
	dSampleCount     uint32
	ddSampleCount    uint32
	alpha            float64
	eventsFAID       int32

	bufs   [2][]byte
	active int

	row        uint32
	haveIDZero bool
	idZero     uint32
	timestamps []float64

	firstAcc  []accumulator
	secondAcc []accumulator
}

// NewPipeline builds a pipeline for the given archive context. bufA and
// bufB are the disk writer's page-aligned double buffer, each
// ctx.Layout.MajorBlockSize bytes (spec §4.2, "the writer maintains two
// page-aligned memory blocks").
func NewPipeline(ctx *archive.Context, bufA, bufB []byte, submit SubmitFunc) *Pipeline {
	l := ctx.Layout
	idIndex := make(map[int]int, len(l.ArchiveIDs))
	for i, id := range l.ArchiveIDs {
		idIndex[id] = i
	}

	p := &Pipeline{
		ctx:              ctx,
		submit:           submit,
		ids:              l.ArchiveIDs,
		idIndex:          idIndex,
		faEntryCount:     int(l.FAEntryCount),
		majorSampleCount: l.MajorSampleCount,
		firstWindow:      1 << l.FirstDecimationLog2,
		secondWindow:     1 << (l.FirstDecimationLog2 + l.SecondDecimationLog2),
		dSampleCount:     l.DSampleCount,
		ddSampleCount:    l.DDSampleCount,
		alpha:            ctx.Header().TimestampIIRWeight,
		eventsFAID:       ctx.Header().EventsFAID,
	}
	p.bufs[0] = bufA
	p.bufs[1] = bufB
	p.resetAccumulators()

	return p
}

func (p *Pipeline) resetAccumulators() {
	p.firstAcc = make([]accumulator, len(p.ids))
	p.secondAcc = make([]accumulator, len(p.ids))
	for i := range p.firstAcc {
		p.firstAcc[i] = newAccumulator()
		p.secondAcc[i] = newAccumulator()
	}
}

// rowBytes is the byte size of one FA row across all (not just archived) ids.
func (p *Pipeline) rowBytes() int { return p.faEntryCount * frame.Size }

// Feed processes one input block from the circular buffer (spec §4.3).
// gap signals that the frame source reported a stall for this block; on a
// gap every partial accumulator for the current major block is discarded
// without advancing the index (step 6).
func (p *Pipeline) Feed(timestampUS uint64, gap bool, data []byte) error {
	if gap {
		p.resetBlock()
		return errs.ErrGapInStream
	}

	rowBytes := p.rowBytes()
	if rowBytes == 0 || len(data)%rowBytes != 0 {
		return errs.ErrBadRequest
	}
	numRows := len(data) / rowBytes

	if !p.haveIDZero {
		p.idZero = uint32(frame.Decode(data[0:frame.Size]).X)
		p.haveIDZero = true
	}
	p.timestamps = append(p.timestamps, float64(timestampUS))

	buf := p.bufs[p.active]
	for r := 0; r < numRows; r++ {
		rowStart := r * rowBytes
		for idxInArchive, id := range p.ids {
			f := frame.Decode(data[rowStart+id*frame.Size:])
			p.addSample(idxInArchive, f, buf)
		}
		p.row++
		if p.row == p.majorSampleCount {
			if err := p.finaliseMajorBlock(); err != nil {
				return err
			}
			buf = p.bufs[p.active]
		}
	}

	return nil
}

// addSample folds one archived-id frame into both decimation accumulators
// and, once a decimation window closes, writes the resulting D sample into
// the raw buffer's D segment or the resulting DD sample directly into the
// mmap'd DD area (spec §4.3 steps 2-4).
func (p *Pipeline) addSample(idxInArchive int, f frame.Frame, buf []byte) {
	rawOff := p.ctx.Layout.RawOffset(idxInArchive) + uint64(p.row)*uint64(frame.Size)
	copy(buf[rawOff:rawOff+frame.Size], f.Bytes(nil))

	isEvent := p.eventsFAID >= 0 && p.ids[idxInArchive] == int(p.eventsFAID)

	p.firstAcc[idxInArchive].Add(f)
	p.secondAcc[idxInArchive].Add(f)

	if p.firstAcc[idxInArchive].count == p.firstWindow {
		sample := p.firstAcc[idxInArchive].Finish(isEvent)
		dIndex := uint64(p.row+1)/uint64(p.firstWindow) - 1
		dOff := p.ctx.Layout.DOffset(idxInArchive) + dIndex*uint64(format.DecimatedSampleSize)
		copy(buf[dOff:dOff+uint64(format.DecimatedSampleSize)], sample.Bytes(nil))
		p.firstAcc[idxInArchive] = newAccumulator()
	}

	if p.secondAcc[idxInArchive].count == p.secondWindow {
		sample := p.secondAcc[idxInArchive].Finish(isEvent)
		ddIndexInBlock := uint64(p.row+1)/uint64(p.secondWindow) - 1
		absoluteDDIndex := uint64(p.ctx.Header().CurrentMajorBlock)*uint64(p.ddSampleCount) + ddIndexInBlock
		p.ctx.WriteDDSample(idxInArchive, absoluteDDIndex, sample)
		p.secondAcc[idxInArchive] = newAccumulator()
	}
}

// finaliseMajorBlock implements spec §4.3 step 5: fit the timestamp
// regression, smooth last_duration, write the index entry, schedule the
// block write, advance current_major_block, and msync.
func (p *Pipeline) finaliseMajorBlock() error {
	p.ctx.Lock()
	defer p.ctx.Unlock()

	fit := regression.FitBlockTiming(p.timestamps)
	h := p.ctx.Header()
	smoothed := regression.SmoothDuration(p.alpha, fit.DurationUS, h.LastDuration)

	entry := section.Entry{
		TimestampUS: uint64(fit.TimestampUS),
		DurationUS:  smoothed,
		IDZero:      p.idZero,
	}
	blockIndex := h.CurrentMajorBlock

	if err := p.ctx.WriteIndexEntry(blockIndex, entry); err != nil {
		return err
	}

	buf := p.bufs[p.active]
	if err := p.submit(blockIndex, buf); err != nil {
		return err
	}

	h.LastDuration = smoothed
	h.CurrentMajorBlock = (blockIndex + 1) % h.MajorBlockCount
	if err := p.ctx.FlushHeader(); err != nil {
		return err
	}

	p.active = 1 - p.active
	p.resetBlock()

	return nil
}

// resetBlock discards all partial state for the major block currently
// being assembled, without touching anything already committed (spec §4.3
// step 6).
func (p *Pipeline) resetBlock() {
	p.row = 0
	p.haveIDZero = false
	p.timestamps = p.timestamps[:0]
	p.resetAccumulators()
}
