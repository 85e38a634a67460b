package proto

import (
	"strconv"
	"strings"
	"time"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
	"github.com/dls-controls/fa-archiver/section"
)

// TimestampSpec is a client-supplied time, either a Unix-epoch offset
// ("S1700000000.500000") or an ISO-8601 instant ("T2024-01-02T15:04:05Z"),
// both resolved to microseconds since the Unix epoch (spec §4.4, "start").
type TimestampSpec struct {
	MicrosSinceEpoch uint64
}

// EndSpec is either a sample count ("N64") or a timestamp in start-form
// ("E" followed by the same grammar as start) (spec §4.4, "end").
type EndSpec struct {
	IsCount  bool
	Count    uint64
	Instant  TimestampSpec
}

// ReadOptions are the single-letter flags following end (spec §4.4,
// "options").
type ReadOptions struct {
	PrependCount       bool // N
	AcceptTruncated    bool // A
	InitialTimestamp   bool // T
	ExtendedTimestamp  bool // TE
	AggregateTimestamp bool // TA
	IncludeID0         bool // Z
	Contiguous         bool // C
	ContiguousID0      bool // CZ
}

// ReadRequest is a fully parsed "R" request (spec §4.4).
type ReadRequest struct {
	Source   format.Source
	DataMask section.DataMask
	Mask     []int
	Start    TimestampSpec
	End      EndSpec
	Options  ReadOptions
}

// ParseReadRequest decodes the request body following the leading "R" byte
// the server has already consumed, e.g. "FM0-3S1.000000N16NT".
func ParseReadRequest(line string, faEntryCount int) (ReadRequest, error) {
	s := line
	var req ReadRequest

	source, dataMask, rest, err := parseSourceToken(s)
	if err != nil {
		return ReadRequest{}, err
	}
	req.Source, req.DataMask = source, dataMask
	s = rest

	if !strings.HasPrefix(s, "M") {
		return ReadRequest{}, errs.ErrBadRequest
	}
	s = s[1:]

	maskEnd := strings.IndexAny(s, "ST")
	if maskEnd < 0 {
		return ReadRequest{}, errs.ErrBadRequest
	}
	mask, err := ParseMask(s[:maskEnd], faEntryCount)
	if err != nil {
		return ReadRequest{}, err
	}
	req.Mask = mask
	s = s[maskEnd:]

	start, rest, err := parseTimestampSpec(s)
	if err != nil {
		return ReadRequest{}, err
	}
	req.Start = start
	s = rest

	end, rest, err := parseEndSpec(s)
	if err != nil {
		return ReadRequest{}, err
	}
	req.End = end
	s = rest

	req.Options, err = parseReadOptions(s)
	if err != nil {
		return ReadRequest{}, err
	}

	return req, nil
}

// parseSourceToken parses `"F" | "D"[F<mask>] | "DD"[F<mask>]` and returns
// the remainder of the line starting at the mandatory "M" site-mask token.
func parseSourceToken(s string) (format.Source, section.DataMask, string, error) {
	switch {
	case strings.HasPrefix(s, "DD"):
		return parseDataMaskSuffix(format.SourceDD, s[2:])
	case strings.HasPrefix(s, "D"):
		return parseDataMaskSuffix(format.SourceD, s[1:])
	case strings.HasPrefix(s, "F"):
		return format.SourceFA, section.DataMaskAll, s[1:], nil
	default:
		return 0, 0, "", errs.ErrUnknownSource
	}
}

func parseDataMaskSuffix(src format.Source, s string) (format.Source, section.DataMask, string, error) {
	if !strings.HasPrefix(s, "F") {
		return src, section.DataMaskAll, s, nil
	}
	s = s[1:]
	if len(s) < 2 {
		return 0, 0, "", errs.ErrBadRequest
	}
	hi, err := hexNibble(s[0])
	if err != nil {
		return 0, 0, "", err
	}
	lo, err := hexNibble(s[1])
	if err != nil {
		return 0, 0, "", err
	}
	return src, section.DataMask(hi<<4 | lo), s[2:], nil
}

// parseTimestampSpec consumes a "S<seconds>[.frac]" or "T<iso8601>Z" token
// and returns the remainder of the line.
func parseTimestampSpec(s string) (TimestampSpec, string, error) {
	if s == "" {
		return TimestampSpec{}, "", errs.ErrBadRequest
	}
	switch s[0] {
	case 'S':
		i := 1
		for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		secs, err := parseFixedSeconds(s[1:i])
		if err != nil {
			return TimestampSpec{}, "", err
		}
		return TimestampSpec{MicrosSinceEpoch: secs}, s[i:], nil
	case 'T':
		zi := strings.IndexByte(s, 'Z')
		if zi < 0 {
			return TimestampSpec{}, "", errs.ErrBadRequest
		}
		t, err := time.Parse(time.RFC3339, s[1:zi+1])
		if err != nil {
			return TimestampSpec{}, "", errs.ErrBadRequest
		}
		return TimestampSpec{MicrosSinceEpoch: uint64(t.UnixMicro())}, s[zi+1:], nil
	default:
		return TimestampSpec{}, "", errs.ErrBadRequest
	}
}

func parseFixedSeconds(s string) (uint64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, errs.ErrBadRequest
	}
	var fracUS uint64
	if frac != "" {
		for len(frac) < 6 {
			frac += "0"
		}
		frac = frac[:6]
		v, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, errs.ErrBadRequest
		}
		fracUS = v
	}
	return sec*1_000_000 + fracUS, nil
}

func parseEndSpec(s string) (EndSpec, string, error) {
	if s == "" {
		return EndSpec{}, "", errs.ErrBadRequest
	}
	switch s[0] {
	case 'N':
		i := 1
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		count, err := strconv.ParseUint(s[1:i], 10, 64)
		if err != nil {
			return EndSpec{}, "", errs.ErrBadRequest
		}
		return EndSpec{IsCount: true, Count: count}, s[i:], nil
	case 'E':
		instant, rest, err := parseTimestampSpec(s[1:])
		if err != nil {
			return EndSpec{}, "", err
		}
		return EndSpec{Instant: instant}, rest, nil
	default:
		return EndSpec{}, "", errs.ErrBadRequest
	}
}

func parseReadOptions(s string) (ReadOptions, error) {
	var opt ReadOptions
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'N':
			opt.PrependCount = true
		case 'A':
			opt.AcceptTruncated = true
		case 'T':
			if i+1 < len(s) && s[i+1] == 'E' {
				opt.ExtendedTimestamp = true
				i++
			} else if i+1 < len(s) && s[i+1] == 'A' {
				opt.AggregateTimestamp = true
				i++
			} else {
				opt.InitialTimestamp = true
			}
		case 'Z':
			opt.IncludeID0 = true
		case 'C':
			if i+1 < len(s) && s[i+1] == 'Z' {
				opt.ContiguousID0 = true
				i++
			} else {
				opt.Contiguous = true
			}
		default:
			return ReadOptions{}, errs.ErrBadRequest
		}
	}
	return opt, nil
}
