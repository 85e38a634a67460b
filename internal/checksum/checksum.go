// Package checksum provides an xxHash64-based checksum over a block's raw
// bytes, for checking that a read block is not corrupted (spec §8, "no
// reader observes corrupted data"); no other package in this module calls
// it. It replaces the teacher's use of xxhash for metric-ID hashing
// (internal/hash) with the same library applied to raw block bytes.
package checksum

import "github.com/cespare/xxhash/v2"

// Block returns the xxHash64 checksum of a block's raw bytes.
func Block(data []byte) uint64 {
	return xxhash.Sum64(data)
}
