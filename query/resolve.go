// Package query implements the historical read path of spec §4.4: request
// resolution, timestamp-to-block conversion, contiguity checking, and the
// pooled-buffer admission-controlled read itself.
package query

import (
	"github.com/dls-controls/fa-archiver/archive"
	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/section"
)

// validEntry pairs an index entry with its physical block index, used while
// building the rotated oldest-to-newest view of the archive (spec §4.4 step
// 1, "handling wrap-around and skipping the current block").
type validEntry struct {
	block uint32
	entry section.Entry
}

// orderedEntries returns every index entry except the one currently being
// written, in oldest-to-newest chronological order. Scanning the ring
// starting just past current_major_block always yields ascending
// timestamps: that position is the next one to be overwritten (the
// oldest surviving data), and entries never yet written (duration 0) can
// only appear as a leading run before the archive has completed its first
// lap, so they are skipped rather than treated as a gap.
func orderedEntries(ctx *archive.Context) ([]validEntry, error) {
	n := ctx.Layout.MajorBlockCount
	current := ctx.Header().CurrentMajorBlock

	out := make([]validEntry, 0, n)
	seenData := false
	for i := uint32(0); i < n; i++ {
		block := (current + 1 + i) % n
		if block == current {
			continue
		}
		entry, err := ctx.ReadIndexEntry(block)
		if err != nil {
			return nil, err
		}
		if entry.DurationUS == 0 && !seenData {
			continue
		}
		seenData = true
		out = append(out, validEntry{block: block, entry: entry})
	}
	return out, nil
}

// ResolveTimestamp converts a timestamp to the (block, FA-sample-offset)
// pair it falls within, binary searching the rotated valid-entry view
// (spec §4.4 step 1).
func ResolveTimestamp(ctx *archive.Context, timestampUS uint64) (block uint32, sampleOffset uint32, err error) {
	entries, err := orderedEntries(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, errs.ErrNoData
	}

	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		e := entries[mid].entry
		if timestampUS < e.TimestampUS {
			hi = mid - 1
			continue
		}
		if timestampUS >= e.TimestampUS+uint64(e.DurationUS) {
			lo = mid + 1
			continue
		}
		offset := timestampUS - e.TimestampUS
		samplesPerUS := float64(ctx.Layout.MajorSampleCount) / float64(e.DurationUS)
		return entries[mid].block, uint32(float64(offset) * samplesPerUS), nil
	}

	// Timestamp before the earliest block or after the latest: clamp per
	// spec's "resolve similarly" (callers decide whether out-of-range is a
	// hard failure via the sample-count check that follows resolution).
	if timestampUS < entries[0].entry.TimestampUS {
		return entries[0].block, 0, nil
	}
	last := entries[len(entries)-1]
	return last.block, ctx.Layout.MajorSampleCount, nil
}

// EarliestTimestamp returns the timestamp of the oldest block the archive
// still holds (spec §4.6, status command "T").
func EarliestTimestamp(ctx *archive.Context) (uint64, error) {
	entries, err := orderedEntries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, errs.ErrNoData
	}
	return entries[0].entry.TimestampUS, nil
}

// AvailableSamples returns the number of FA-rate samples between the
// resolved start position and the most recently completed major block.
func AvailableSamples(ctx *archive.Context, startBlock uint32, startOffset uint32) (uint64, error) {
	entries, err := orderedEntries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	startIdx := -1
	for i, e := range entries {
		if e.block == startBlock {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return 0, errs.ErrBadRequest
	}

	var total uint64
	total += uint64(ctx.Layout.MajorSampleCount) - uint64(startOffset)
	for i := startIdx + 1; i < len(entries); i++ {
		total += uint64(ctx.Layout.MajorSampleCount)
	}
	return total, nil
}
