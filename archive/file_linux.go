//go:build linux

package archive

import (
	"os"

	"github.com/dls-controls/fa-archiver/errs"
	"golang.org/x/sys/unix"
)

// openDirect opens path for O_DIRECT aligned writes, as the disk writer
// requires (spec §4.2, "issues O_DIRECT aligned writes").
func openDirect(path string, create bool) (*os.File, error) {
	flags := os.O_RDWR | unix.O_DIRECT
	if create {
		flags |= os.O_CREATE
	}
	return os.OpenFile(path, flags, 0644)
}

// openReadOnly opens a plain (non-O_DIRECT) read-only descriptor for the
// query engine (spec §6, "Archive lock": "readers open read-only file
// descriptors").
func openReadOnly(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

// lockExclusive takes the writer's process-lifetime archive lock (spec §6,
// "Archive lock": "The writer holds an flock(LOCK_EX | LOCK_NB) ... for its
// lifetime").
func lockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errs.ErrArchiveLocked
	}
	return nil
}

// preallocate reserves disk space for size bytes so the header's fixed
// layout never hits ENOSPC mid-write, matching the archive-file initialiser
// contract of spec §1 ("writes the header and zero-fills the file").
func preallocate(f *os.File, size uint64) error {
	return unix.Fallocate(int(f.Fd()), 0, 0, int64(size))
}

// pread reads len(buf) bytes from offset off without disturbing the file's
// shared read offset, so concurrent query-engine reads never race each
// other's Seek (spec §4.4 step 6, "FA/D paths use pread").
func pread(f *os.File, buf []byte, off int64) (int, error) {
	return unix.Pread(int(f.Fd()), buf, off)
}

// pwrite writes buf to offset off, used by the disk writer to submit a
// completed major block (spec §4.2).
func pwrite(f *os.File, buf []byte, off int64) (int, error) {
	return unix.Pwrite(int(f.Fd()), buf, off)
}
