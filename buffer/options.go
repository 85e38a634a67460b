package buffer

import "github.com/dls-controls/fa-archiver/internal/options"

// WithWriteDisabled starts the buffer with writes disabled, so the first
// ReserveWrite blocks until something calls SetWriteEnable(true). Useful
// when a producer is wired up after the buffer itself (spec §4.1's
// writeEnable flag defaults true; this flips that default for callers that
// need to gate the first write).
func WithWriteDisabled() options.Option[*Buffer] {
	return options.NoError(func(b *Buffer) {
		b.writeEnable = false
	})
}
