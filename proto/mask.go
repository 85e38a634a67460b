// Package proto implements the wire-level request grammar of spec §6: mask
// parsing, read/subscribe/status request lines, and the extended-timestamp
// record framing. It has no knowledge of sockets; server owns connection
// handling and calls into proto to decode a line and encode a response.
package proto

import (
	"strconv"
	"strings"

	"github.com/dls-controls/fa-archiver/errs"
)

// ParseMask parses the mask grammar of spec §6: `mask = id ["-" id]
// ["," mask]`, inclusive ranges, returning the sorted, deduplicated list of
// ids named. faEntryCount bounds valid ids to [0, faEntryCount).
func ParseMask(s string, faEntryCount int) ([]int, error) {
	if s == "" {
		return nil, errs.ErrBadRequest
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 0 || hi >= faEntryCount || lo > hi {
			return nil, errs.ErrUnknownID
		}
		for id := lo; id <= hi; id++ {
			seen[id] = true
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sortInts(ids)
	return ids, nil
}

func parseRange(part string) (lo, hi int, err error) {
	dash := strings.IndexByte(part, '-')
	if dash < 0 {
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, errs.ErrBadRequest
		}
		return v, v, nil
	}
	loS, hiS := part[:dash], part[dash+1:]
	lo, errLo := strconv.Atoi(loS)
	hi, errHi := strconv.Atoi(hiS)
	if errLo != nil || errHi != nil {
		return 0, 0, errs.ErrBadRequest
	}
	return lo, hi, nil
}

func sortInts(ids []int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

const hexDigits = "0123456789abcdef"

// FormatRawMask renders the archive-mask bitset as the wire hex form of
// spec §6 ("RAW_MASK_BYTES = fa_entry_count/4 lowercase hex nibbles,
// little-endian per-byte"): one byte per 8 ids, low bit = lowest id,
// rendered as two lowercase hex characters per byte.
func FormatRawMask(ids []int, faEntryCount int) string {
	bytes := make([]byte, (faEntryCount+7)/8)
	for _, id := range ids {
		bytes[id/8] |= 1 << uint(id%8)
	}
	var b strings.Builder
	for _, v := range bytes {
		b.WriteByte(hexDigits[v&0xf])
		b.WriteByte(hexDigits[v>>4])
	}
	return b.String()
}

// ParseRawMask is the inverse of FormatRawMask.
func ParseRawMask(hex string, faEntryCount int) ([]int, error) {
	want := (faEntryCount + 7) / 8 * 2
	if len(hex) != want {
		return nil, errs.ErrBadRequest
	}
	ids := make([]int, 0, faEntryCount)
	for i := 0; i < len(hex); i += 2 {
		lo, err := hexNibble(hex[i])
		if err != nil {
			return nil, err
		}
		hi, err := hexNibble(hex[i+1])
		if err != nil {
			return nil, err
		}
		v := lo | hi<<4
		base := (i / 2) * 8
		for bit := 0; bit < 8; bit++ {
			if v&(1<<uint(bit)) != 0 && base+bit < faEntryCount {
				ids = append(ids, base+bit)
			}
		}
	}
	return ids, nil
}

func hexNibble(c byte) (int, error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), nil
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, nil
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, nil
	default:
		return 0, errs.ErrBadRequest
	}
}
