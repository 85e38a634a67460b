package proto

import (
	"strings"

	"github.com/dls-controls/fa-archiver/errs"
)

// SubscribeOptions are the flags following the mask in an "S" request (spec
// §4.5): "S <mask> [T[E]] [Z] [U] [D]".
type SubscribeOptions struct {
	InitialTimestamp  bool // T
	ExtendedTimestamp bool // TE
	IncludeID0        bool // Z
	Uncork            bool // U
	Decimated         bool // D
}

// SubscribeRequest is a fully parsed "S" request.
type SubscribeRequest struct {
	Mask    []int
	Options SubscribeOptions
}

// ParseSubscribeRequest decodes the request body following the leading "S"
// byte the server has already consumed, e.g. "0-3TEZU".
func ParseSubscribeRequest(line string, faEntryCount int) (SubscribeRequest, error) {
	maskEnd := strings.IndexAny(line, "TZUD")
	if maskEnd < 0 {
		maskEnd = len(line)
	}
	mask, err := ParseMask(line[:maskEnd], faEntryCount)
	if err != nil {
		return SubscribeRequest{}, err
	}

	var opt SubscribeOptions
	s := line[maskEnd:]
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'T':
			if i+1 < len(s) && s[i+1] == 'E' {
				opt.ExtendedTimestamp = true
				i++
			} else {
				opt.InitialTimestamp = true
			}
		case 'Z':
			opt.IncludeID0 = true
		case 'U':
			opt.Uncork = true
		case 'D':
			opt.Decimated = true
		default:
			return SubscribeRequest{}, errs.ErrBadRequest
		}
	}

	return SubscribeRequest{Mask: mask, Options: opt}, nil
}
