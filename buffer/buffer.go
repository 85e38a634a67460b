// Package buffer implements the circular buffer of spec §4.1: a bounded,
// single-writer / multi-reader ring of fixed-size blocks decoupling the
// frame source from its downstream consumers. The reader/buffer
// relationship is inherently cyclic (spec §9, "Cyclic graph"); rather than
// give each Reader a back-pointer to the Buffer, the Buffer owns an indexed,
// mutex-guarded table of reader state and hands callers a small handle
// (*Reader) carrying only its slot index.
package buffer

import (
	"sync"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/internal/options"
)

// Block is one fixed-size slot in the ring, holding raw bytes from the
// frame source plus the metadata committed alongside it (spec §3, "Input
// block"; spec §4.1 "per-block {gap-flag, timestamp} metadata").
type Block struct {
	Data      []byte
	Gap       bool
	TimestampUS uint64
}

// readerState is the buffer-owned bookkeeping for one attached reader (spec
// §9, "readers hold an index into that container, never a back-pointer").
type readerState struct {
	index       uint64 // next block index this reader will read
	reserved    bool
	interrupted bool
	lastRead    uint64 // last TimestampUS observed, for status reporting
}

// Buffer is the multi-reader circular buffer described in spec §4.1.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	blocks      []Block
	writeIndex  uint64 // monotonically increasing, modulo len(blocks) for slot access
	writeEnable bool

	readers []*readerState // indexed by Reader.slot; nil entries are free slots
}

// New allocates a Buffer of blockCount blocks, each blockSize bytes, and
// enables writes immediately unless WithWriteDisabled is given. Buffers are allocated once at startup and
// never resized (spec §3, "Ownership and lifecycle").
func New(blockCount, blockSize int, opts ...options.Option[*Buffer]) *Buffer {
	b := &Buffer{
		blocks:      make([]Block, blockCount),
		writeEnable: true,
	}
	for i := range b.blocks {
		b.blocks[i].Data = make([]byte, blockSize)
	}
	b.cond = sync.NewCond(&b.mu)
	_ = options.Apply(b, opts...) // NoError options only; Buffer has no fallible configuration
	return b
}

// BlockCount returns the ring's fixed block capacity.
func (b *Buffer) BlockCount() int { return len(b.blocks) }

// SetWriteEnable toggles the write-enable flag. Disabling causes
// ReserveWrite to block until re-enabled (spec §4.1).
func (b *Buffer) SetWriteEnable(enable bool) {
	b.mu.Lock()
	b.writeEnable = enable
	b.mu.Unlock()
	b.cond.Broadcast()
}

// ReserveWrite returns the current write slot for the producer to fill. It
// blocks while writes are disabled, and also blocks while handing out this
// slot would overrun a reserved reader (one whose lag has reached
// BlockCount) — the gate has to fire here, before the slot is handed out
// for filling, not in CommitWrite: by then the slot's Data would already
// have been overwritten for one more commit than a reserved reader can
// tolerate (spec §4.1, §5 "Reserved vs lossy reader policy").
func (b *Buffer) ReserveWrite() *Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if !b.writeEnable {
			b.cond.Wait()
			continue
		}
		blocked := false
		for _, r := range b.readers {
			if r == nil || !r.reserved {
				continue
			}
			if b.writeIndex-r.index >= uint64(len(b.blocks)) {
				blocked = true
				break
			}
		}
		if !blocked {
			break
		}
		b.cond.Wait()
	}
	return &b.blocks[b.writeIndex%uint64(len(b.blocks))]
}

// CommitWrite publishes the metadata for the slot returned by the prior
// ReserveWrite and advances the write index; non-reserved readers still
// behind when it wraps over them are silently overrun (spec §4.1, §5).
func (b *Buffer) CommitWrite(gap bool, timestampUS uint64) {
	b.mu.Lock()
	slot := &b.blocks[b.writeIndex%uint64(len(b.blocks))]
	slot.Gap = gap
	slot.TimestampUS = timestampUS
	b.writeIndex++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Reader is a handle to one attached consumer. The zero value is not usable;
// obtain one via Buffer.OpenReader.
type Reader struct {
	buf  *Buffer
	slot int
}

// OpenReader attaches a new reader starting at the current write index.
// Reserved readers (the disk writer, the decimator) block the producer
// rather than being overrun; lossy readers (subscribers) are silently
// dropped instead (spec §4.1, §5).
func (b *Buffer) OpenReader(reserved bool) *Reader {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := &readerState{index: b.writeIndex, reserved: reserved}
	slot := -1
	for i, r := range b.readers {
		if r == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		slot = len(b.readers)
		b.readers = append(b.readers, nil)
	}
	b.readers[slot] = st

	return &Reader{buf: b, slot: slot}
}

// Close detaches the reader, freeing its slot and unblocking the writer if
// it was reserved and currently being waited on.
func (r *Reader) Close() {
	r.buf.mu.Lock()
	r.buf.readers[r.slot] = nil
	r.buf.mu.Unlock()
	r.buf.cond.Broadcast()
}

// Interrupt wakes a reader blocked in Read without detaching it (spec
// §4.1, "interrupt(reader)").
func (r *Reader) Interrupt() {
	r.buf.mu.Lock()
	r.buf.readers[r.slot].interrupted = true
	r.buf.mu.Unlock()
	r.buf.cond.Broadcast()
}

// Read waits until a new block is available and returns it, or returns an
// error if the block was a gap, the reader overran (non-reserved only), or
// the reader was interrupted (spec §4.1).
func (r *Reader) Read() (*Block, error) {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.readers[r.slot]
	for st.index == b.writeIndex && !st.interrupted {
		b.cond.Wait()
	}
	if st.interrupted {
		st.interrupted = false
		return nil, errs.ErrReaderInterrupted
	}

	lag := b.writeIndex - st.index
	if !st.reserved && lag >= uint64(len(b.blocks)) {
		// Fully overrun: snap forward so the next read isn't another stale gap.
		st.index = b.writeIndex - uint64(len(b.blocks))
		return nil, errs.ErrReaderOverrun
	}

	blk := &b.blocks[st.index%uint64(len(b.blocks))]
	st.lastRead = blk.TimestampUS
	if blk.Gap {
		return nil, errs.ErrGapInStream
	}

	return blk, nil
}

// Release advances the reader past the block last returned by Read. It
// reports false if the slot was overwritten while the caller held it (only
// possible for non-reserved readers), meaning the data they just used may
// be stale (spec §4.1, "release_read").
func (r *Reader) Release() bool {
	b := r.buf
	b.mu.Lock()
	st := b.readers[r.slot]
	overwritten := !st.reserved && b.writeIndex-st.index > uint64(len(b.blocks))
	st.index++
	b.mu.Unlock()
	b.cond.Broadcast()
	return !overwritten
}

// Lag reports how many blocks behind the writer this reader currently is.
func (r *Reader) Lag() uint64 {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeIndex - b.readers[r.slot].index
}
