package pool

import "github.com/dls-controls/fa-archiver/errs"

// ByteBuffer is a reusable, page-aligned byte buffer (spec §2 item 9,
// "Buffer pool"). Unlike the teacher's growable ByteBuffer (which backs an
// unbounded sync.Pool for encoder scratch space), archive I/O buffers are
// fixed-size and rented under admission control, so this type drops Grow in
// favour of a single allocation sized once at pool construction.
type ByteBuffer struct {
	B []byte
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Reset restores the slice to its full capacity; its contents are not
// cleared.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:cap(bb.B)] }

// BufferPool is a bounded pool of page-aligned byte buffers, rented to
// concurrent disk reads and writes (spec §4.9). Unlike sync.Pool, which
// allocates on demand and never blocks, admission here is closed: the pool
// holds exactly `count` buffers and TryAcquire fails immediately rather than
// blocking or growing, matching spec §5's "pool lock_buffers (fails
// immediately rather than blocks)".
type BufferPool struct {
	slots chan *ByteBuffer
}

// NewBufferPool allocates `count` buffers of `size` bytes each, padded up to
// a multiple of `align` (the archive's O_DIRECT alignment).
func NewBufferPool(count, size, align int) *BufferPool {
	padded := size
	if align > 0 {
		if rem := padded % align; rem != 0 {
			padded += align - rem
		}
	}

	p := &BufferPool{slots: make(chan *ByteBuffer, count)}
	for i := 0; i < count; i++ {
		p.slots <- &ByteBuffer{B: make([]byte, padded)}
	}

	return p
}

// TryAcquire rents n buffers without blocking. It either returns all n or
// none: on partial availability it puts back what it grabbed and fails, so
// callers never hold a partial admission (spec §4.4 step 5, "Lock
// archive_mask_count' buffers from the pool... fail with 'Read too busy' if
// insufficient").
func (p *BufferPool) TryAcquire(n int) ([]*ByteBuffer, error) {
	got := make([]*ByteBuffer, 0, n)
	for i := 0; i < n; i++ {
		select {
		case b := <-p.slots:
			got = append(got, b)
		default:
			for _, b := range got {
				p.slots <- b
			}
			return nil, errs.ErrArchiveTooBusy
		}
	}
	return got, nil
}

// Release returns buffers to the pool.
func (p *BufferPool) Release(bufs []*ByteBuffer) {
	for _, b := range bufs {
		b.Reset()
		p.slots <- b
	}
}

// Cap reports the pool's total admission capacity.
func (p *BufferPool) Cap() int { return cap(p.slots) }
