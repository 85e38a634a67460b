package archive

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// mapRegion memory-maps the first n bytes of f read-write, backing the
// disk header, index area and DD area for the process lifetime (spec §3,
// "Ownership and lifecycle"). mmap-go was retrieved from the pack's
// kortschak-ins manifest, itself a sequence-archive tool that maps a
// fixed-layout binary file the same way.
func mapRegion(f *os.File, n uint64) (mmap.MMap, error) {
	return mmap.MapRegion(f, int(n), mmap.RDWR, 0, 0)
}

// Sync flushes the mapped header/index/DD region to disk, the mmap-go
// equivalent of msync (spec §3, "DD area ... persisted via msync"; spec
// §4.3 step 5, "msync header and the affected index page").
func (c *Context) Sync() error {
	return c.region.Flush()
}

// Close unmaps the region and closes the file descriptors.
func (c *Context) Close() error {
	if err := c.region.Unmap(); err != nil {
		return err
	}
	if c.writeFile != nil {
		if err := c.writeFile.Close(); err != nil {
			return err
		}
	}
	return c.readFile.Close()
}
