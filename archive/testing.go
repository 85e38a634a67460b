package archive

import (
	"os"

	"github.com/dls-controls/fa-archiver/format"
	"go.uber.org/zap"
)

// NewTestContext builds a Context identical in shape to one returned by
// Init, but backed by a plain buffered file instead of an O_DIRECT
// descriptor and without taking the process-lifetime flock. O_DIRECT
// requires filesystem support the test runner's tmpdir may not offer, and a
// test process has no business contending with a real writer for the lock
// (spec §6, "Archive lock" describes production contention, not test
// isolation).
func NewTestContext(path string, layout Layout) (*Context, error) {
	wf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := wf.Truncate(int64(layout.FileSize())); err != nil {
		wf.Close()
		return nil, err
	}

	h := layout.Header()
	hdr := make([]byte, format.HeaderSize)
	copy(hdr, h.Bytes())
	if _, err := wf.WriteAt(hdr, 0); err != nil {
		wf.Close()
		return nil, err
	}
	zero := make([]byte, format.IndexEntrySize)
	for i := uint32(0); i < layout.MajorBlockCount; i++ {
		if _, err := wf.WriteAt(zero, int64(layout.IndexDataStart)+int64(i)*int64(format.IndexEntrySize)); err != nil {
			wf.Close()
			return nil, err
		}
	}

	rf, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		wf.Close()
		return nil, err
	}

	region, err := mapRegion(wf, layout.MappedSize())
	if err != nil {
		wf.Close()
		rf.Close()
		return nil, err
	}

	return &Context{
		Layout:    layout,
		writeFile: wf,
		readFile:  rf,
		region:    region,
		header:    h,
		barrier:   newRWBarrier(),
		logger:    zap.NewNop(),
	}, nil
}
