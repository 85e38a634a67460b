package query

import (
	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
)

// CheckContiguous walks the index entries spanned by [startBlock, endBlock]
// and fails as soon as a neighbouring pair violates the contiguity
// invariant, reporting how many samples were contiguous up to that point
// (spec §4.4 step 4, "C"/"CZ" options).
func CheckContiguous(ctx *archive.Context, startBlock, endBlock uint32, majorSampleCount uint32, checkIDZero bool) error {
	entries, err := orderedEntries(ctx)
	if err != nil {
		return err
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
		return errs.ErrBadRequest
	}

	var contiguous int64
	for i := startIdx; i < endIdx; i++ {
		contiguous += int64(majorSampleCount)
		cur, next := entries[i].entry, entries[i+1].entry
		if !cur.ContiguousWith(next, majorSampleCount, format.MaxDeltaT, checkIDZero) {
			return &errs.OnlyNContiguous{N: contiguous}
		}
	}
	return nil
}
