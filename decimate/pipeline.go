package decimate

import (
	"errors"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/frame"
)

// channel holds one archived id's CIC + compensation FIR chain.
type channel struct {
	cic *CIC
	fir *FIR
}

// Pipeline is the decimator thread of spec §2 item 5: a reserved reader of
// the FA buffer that feeds one CIC+FIR chain per archived id and publishes
// the result into a second, lower-rate buffer for the subscribe engine.
type Pipeline struct {
	reader       *buffer.Reader
	out          *buffer.Buffer
	ids          []int
	faEntryCount int
	cfg          Config
	channels     []*channel
}

// NewPipeline attaches a reserved reader to in and builds one channel per
// id in ids; out is the decimated buffer this pipeline publishes to.
func NewPipeline(in *buffer.Buffer, out *buffer.Buffer, ids []int, faEntryCount int, cfg Config) *Pipeline {
	p := &Pipeline{
		reader:       in.OpenReader(true),
		out:          out,
		ids:          ids,
		faEntryCount: faEntryCount,
		cfg:          cfg,
	}
	p.resetChannels()
	return p
}

func (p *Pipeline) rowBytes() int { return p.faEntryCount * frame.Size }

// Run drains the FA buffer, feeding each row to every channel and
// publishing a decimated output row whenever all channels produce an
// output frame on the same input row (spec §2 item 5, §5 "Decimator
// thread").
func (p *Pipeline) Run() error {
	for {
		blk, err := p.reader.Read()
		switch {
		case errors.Is(err, errs.ErrReaderInterrupted):
			return nil
		case errors.Is(err, errs.ErrGapInStream):
			p.resetChannels()
			p.reader.Release()
			continue
		case err != nil:
			return err
		}

		if err := p.feed(blk.TimestampUS, blk.Data); err != nil {
			return err
		}
		p.reader.Release()
	}
}

func (p *Pipeline) feed(timestampUS uint64, data []byte) error {
	rowBytes := p.rowBytes()
	if rowBytes == 0 || len(data)%rowBytes != 0 {
		return errs.ErrBadRequest
	}
	numRows := len(data) / rowBytes

	for r := 0; r < numRows; r++ {
		rowStart := r * rowBytes
		outRow := make([]byte, len(p.ids)*frame.Size)
		ready := true
		for i, id := range p.ids {
			f := frame.Decode(data[rowStart+id*frame.Size:])
			cicOut, ok := p.channels[i].cic.Add(f)
			if !ok {
				ready = false
				continue
			}
			firOut, ok := p.channels[i].fir.Add(cicOut)
			if !ok {
				ready = false
				continue
			}
			copy(outRow[i*frame.Size:], firOut.Bytes(nil))
		}
		if ready {
			blk := p.out.ReserveWrite()
			copy(blk.Data, outRow)
			p.out.CommitWrite(false, timestampUS)
		}
	}
	return nil
}

func (p *Pipeline) resetChannels() {
	p.channels = make([]*channel, len(p.ids))
	for i := range p.ids {
		p.channels[i] = &channel{
			cic: NewCIC(p.cfg.DecimationFactor, p.cfg.HistoryLength),
			fir: NewFIR(p.cfg.CompensationFilter, p.cfg.FilterDecimation),
		}
	}
}

// Stop interrupts the pipeline's blocking read.
func (p *Pipeline) Stop() { p.reader.Interrupt() }

// Close detaches the pipeline's reader.
func (p *Pipeline) Close() { p.reader.Close() }
