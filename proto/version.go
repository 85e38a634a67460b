package proto

import (
	"strconv"
	"strings"

	"github.com/dls-controls/fa-archiver/errs"
	"github.com/dls-controls/fa-archiver/format"
)

// Version is a client-reported protocol version from the "V" status
// subcommand reply / negotiation path of spec §4.6.
type Version struct {
	Major, Minor int
}

// String renders "major.minor", matching the scenario 5 status line
// ("1.1").
func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// ParseVersion parses a "major.minor" string.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, errs.ErrBadRequest
	}
	maj, err1 := strconv.Atoi(major)
	min, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil {
		return Version{}, errs.ErrBadRequest
	}
	return Version{Major: maj, Minor: min}, nil
}

// Rejected reports whether this client version is incompatible with the
// server's (format.ServerMajor, format.ServerMinor). Spec §9's Open
// Question flags this exact condition as a latent bug in the source
// ("accepts mismatched minors when major is newer and older minor") and
// directs that the behaviour be preserved rather than corrected, so this
// implements the condition verbatim rather than the obviously-intended
// `Major != ServerMajor || Minor > ServerMinor`.
func (v Version) Rejected() bool {
	return v.Major > format.ServerMajor || v.Minor >= format.ServerMinor
}
