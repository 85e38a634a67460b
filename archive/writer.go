package archive

import (
	"errors"

	"github.com/dls-controls/fa-archiver/buffer"
	"github.com/dls-controls/fa-archiver/errs"
)

// FeedFunc hands one input block to the block transform (spec §4.3). The
// disk writer owns only the reserved-reader loop over the FA buffer; the
// transform's internal accumulator state lives behind this call.
type FeedFunc func(timestampUS uint64, gap bool, data []byte) error

// Writer is the disk-writer thread of spec §4.2: a reserved reader of the FA
// circular buffer that hands every block to the block transform until told
// to stop.
type Writer struct {
	reader *buffer.Reader
	feed   FeedFunc
}

// NewWriter attaches a reserved reader to buf and binds it to feed, the
// block transform's entry point.
func NewWriter(buf *buffer.Buffer, feed FeedFunc) *Writer {
	return &Writer{reader: buf.OpenReader(true), feed: feed}
}

// Run drains the FA buffer until the reader is interrupted (spec §4.2,
// "disk-writer thread: loop { read(); transform(); release() }"). It
// returns nil on a clean interrupt (Stop was called) and any other error
// otherwise.
func (w *Writer) Run() error {
	for {
		blk, err := w.reader.Read()
		switch {
		case errors.Is(err, errs.ErrReaderInterrupted):
			return nil
		case errors.Is(err, errs.ErrGapInStream):
			ferr := w.feed(0, true, nil)
			w.reader.Release()
			if ferr != nil && !errors.Is(ferr, errs.ErrGapInStream) {
				return ferr
			}
			continue
		case err != nil:
			return err
		}

		if ferr := w.feed(blk.TimestampUS, false, blk.Data); ferr != nil {
			return ferr
		}
		w.reader.Release()
	}
}

// Stop interrupts the writer's blocking read, causing Run to return.
func (w *Writer) Stop() { w.reader.Interrupt() }

// Close detaches the writer's reader from the buffer. Call after Run
// returns.
func (w *Writer) Close() { w.reader.Close() }
