package source

import "github.com/dls-controls/fa-archiver/errs"

// None is the "none" source variant of spec §9: no device is attached, so
// Read blocks until Interrupt is called and never produces data. It backs
// configurations that run the archiver's disk/query/subscribe paths
// without a live or replayed frame stream, e.g. while exercising a
// pre-populated archive.
type None struct {
	interrupt chan struct{}
}

// NewNone builds a None source.
func NewNone() *None {
	return &None{interrupt: make(chan struct{}, 1)}
}

func (n *None) Initialise() error { return nil }
func (n *None) Reset() error      { return nil }
func (n *None) Status() Status    { return Status{} }

// Read blocks until Interrupt is called, then returns ErrReaderInterrupted.
func (n *None) Read(buf []byte) (int, error) {
	<-n.interrupt
	return 0, errs.ErrReaderInterrupted
}

// Interrupt wakes a blocked Read exactly once.
func (n *None) Interrupt() {
	select {
	case n.interrupt <- struct{}{}:
	default:
	}
}
