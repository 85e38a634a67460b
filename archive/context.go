package archive

import (
	"os"
	"sync"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/internal/options"
	"github.com/dls-controls/fa-archiver/section"
	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"
)

// Context is the "archive context" of spec §9 ("Global mutable state"):
// the header pointer, DD-area pointer and transform lock, refactored into a
// single struct passed by shared reference to every component that touches
// the archive (the block transform, the query engine, the disk writer)
// instead of package-level globals.
type Context struct {
	Layout Layout

	// mu is the transform lock of spec §4.3/§4.4: it serialises every
	// transition of CurrentMajorBlock and every reader's conversion from a
	// requested timestamp to a (block, offset) pair.
	mu sync.Mutex

	writeFile *os.File // O_DIRECT fd, disk writer only
	readFile  *os.File // read-only fd, query engine

	region mmap.MMap // header + index + DD area, mapped for process lifetime
	header *section.Header

	barrier *rwBarrier // write-priority read/write exclusion (spec §4.2)

	logger *zap.Logger // internal diagnostics; defaults to a no-op logger
}

// Open opens an existing archive for read-write use by the disk writer: it
// takes the exclusive flock, maps the header/index/DD region, parses and
// validates the header.
func Open(path string, opts ...options.Option[*Context]) (*Context, error) {
	wf, err := openDirect(path, false)
	if err != nil {
		return nil, err
	}
	if err := lockExclusive(wf); err != nil {
		wf.Close()
		return nil, err
	}

	rf, err := openReadOnly(path)
	if err != nil {
		wf.Close()
		return nil, err
	}

	c, err := newContext(wf, rf, opts...)
	if err != nil {
		wf.Close()
		rf.Close()
		return nil, err
	}
	return c, nil
}

// OpenReadOnly opens an archive for the query/subscribe engines only: no
// flock is taken, matching spec §6 ("readers open read-only file
// descriptors").
func OpenReadOnly(path string, opts ...options.Option[*Context]) (*Context, error) {
	rf, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	c, err := newContext(nil, rf, opts...)
	if err != nil {
		rf.Close()
		return nil, err
	}
	return c, nil
}

func newContext(wf, rf *os.File, opts ...options.Option[*Context]) (*Context, error) {
	hdr := make([]byte, format.HeaderSize)
	if _, err := pread(rf, hdr, 0); err != nil {
		return nil, err
	}
	h := &section.Header{}
	if err := h.Parse(hdr); err != nil {
		return nil, err
	}

	layout, err := NewLayout(h.FAEntryCount, h.ArchiveIDs(), h.MajorSampleCount, h.FirstDecimationLog2, h.SecondDecimationLog2, h.MajorBlockCount)
	if err != nil {
		return nil, err
	}
	if layout.MajorBlockSize != h.MajorBlockSize || layout.TotalDataSize != h.TotalDataSize {
		return nil, errs.ErrSizeMismatch
	}

	var region mmap.MMap
	if wf != nil {
		region, err = mapRegion(wf, layout.MappedSize())
	} else {
		region, err = mmap.MapRegion(rf, int(layout.MappedSize()), mmap.RDONLY, 0, 0)
	}
	if err != nil {
		return nil, err
	}

	c := &Context{
		Layout:    layout,
		writeFile: wf,
		readFile:  rf,
		region:    region,
		header:    h,
		barrier:   newRWBarrier(),
		logger:    zap.NewNop(),
	}
	if err := options.Apply(c, opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Header returns the live in-memory header. Callers must hold Lock (or be
// the sole writer thread) before mutating it.
func (c *Context) Header() *section.Header { return c.header }

// Lock acquires the transform lock.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the transform lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// FlushHeader serialises the in-memory header into the mapped region and
// syncs the whole mapped region, header page included (spec §4.3 step 5,
// "msync header"). Caller must hold the transform lock.
func (c *Context) FlushHeader() error {
	copy(c.region[0:format.HeaderSize], c.header.Bytes())
	if err := c.region.Flush(); err != nil {
		c.logger.Warn("header msync failed", zap.Error(err))
		return err
	}
	return nil
}

// WriteIndexEntry writes index entry n into the mapped region and syncs the
// whole mapped region, which includes that entry's page. Caller must hold
// the transform lock.
func (c *Context) WriteIndexEntry(n uint32, e section.Entry) error {
	off := c.Layout.IndexDataStart + uint64(n)*uint64(format.IndexEntrySize)
	copy(c.region[off:off+uint64(format.IndexEntrySize)], e.Bytes())
	return c.region.Flush()
}

// ReadIndexEntry reads index entry n from the mapped region.
func (c *Context) ReadIndexEntry(n uint32) (section.Entry, error) {
	off := c.Layout.IndexDataStart + uint64(n)*uint64(format.IndexEntrySize)
	return section.ParseEntry(c.region[off : off+uint64(format.IndexEntrySize)])
}

// WriteDDSample writes one DD sample for archived-id index idIndex at
// absolute sample index sampleIndex directly into the mmap'd DD area (spec
// §4.3 step 4, "emit one DD sample directly into the memory-mapped DD
// area").
func (c *Context) WriteDDSample(idIndex int, sampleIndex uint64, s section.DecimatedSample) {
	off := c.Layout.DDOffset(idIndex, sampleIndex)
	copy(c.region[off:off+uint64(format.DecimatedSampleSize)], s.Bytes(nil))
}

// ReadDDSamples copies n consecutive DD samples for archived-id index
// idIndex starting at sampleIndex (spec §4.4 step 6, "DD path is a memcpy
// from the mmap'd area").
func (c *Context) ReadDDSamples(idIndex int, sampleIndex uint64, n uint64) []section.DecimatedSample {
	out := make([]section.DecimatedSample, n)
	for i := uint64(0); i < n; i++ {
		off := c.Layout.DDOffset(idIndex, sampleIndex+i)
		out[i] = section.DecodeDecimatedSample(c.region[off : off+uint64(format.DecimatedSampleSize)])
	}
	return out
}

// PreadMajor reads byte range [off, off+len(buf)) of the major data area at
// block n, serialised against in-progress writes via the read/write
// barrier (spec §4.4 step 6, "each archive pread is serialised against
// ongoing writes via request_read").
func (c *Context) PreadMajor(n uint32, withinBlockOffset uint64, buf []byte) error {
	c.barrier.RequestRead()
	defer c.barrier.ReleaseRead()

	off := int64(c.Layout.MajorBlockOffset(n) + withinBlockOffset)
	_, err := pread(c.readFile, buf, off)
	return err
}

// RequestWrite and ReleaseWrite expose the barrier to the disk writer.
func (c *Context) RequestWrite() { c.barrier.RequestWrite() }
func (c *Context) ReleaseWrite() { c.barrier.ReleaseWrite() }

// WriteMajorBlock submits a completed major block's bytes to the O_DIRECT
// write descriptor, serialised against in-progress query-engine preads via
// the read/write barrier (spec §4.2, "the writer submits the buffer ...
// under the write barrier so no reader observes a torn block").
func (c *Context) WriteMajorBlock(n uint32, buf []byte) error {
	c.barrier.RequestWrite()
	defer c.barrier.ReleaseWrite()

	off := int64(c.Layout.MajorBlockOffset(n))
	_, err := pwrite(c.writeFile, buf, off)
	return err
}

// WriteFile exposes the O_DIRECT descriptor to the disk writer.
func (c *Context) WriteFile() *os.File { return c.writeFile }

// Preallocate grows the file to the layout's full size; used by Init only.
func (c *Context) preallocate() error {
	return preallocate(c.writeFile, c.Layout.FileSize())
}
