// Package format holds the wire and on-disk constants shared by every other
// package: protocol framing limits, the disk signature/version, and the
// read-source family tag. Keeping these in one leaf package (rather than
// scattering magic numbers through archive/, query/ and proto/) mirrors the
// teacher's format package, which plays the same role for encoding/
// compression tags.
package format

// Source identifies which buffer a read or subscribe request targets.
type Source uint8

const (
	SourceFA Source = iota + 1 // raw fast-acquisition data
	SourceD                    // first-stage (single) decimation
	SourceDD                   // second-stage (double) decimation
)

func (s Source) String() string {
	switch s {
	case SourceFA:
		return "FA"
	case SourceD:
		return "D"
	case SourceDD:
		return "DD"
	default:
		return "unknown"
	}
}

// IsDecimated reports whether the source is one of the decimated families
// (D or DD). FA itself has no decimation; the D and DD decimation factors
// come from the archive header's first/second decimation fields.
func (s Source) IsDecimated() bool {
	return s == SourceD || s == SourceDD
}

const (
	// MaxFAEntryCount is the largest number of monitored BPM sites a single
	// archive can describe (spec §3, "fa_entry_count ... power of two").
	MaxFAEntryCount = 256

	// FrameSize is the byte size of a single (x, y) int32 pair.
	FrameSize = 8

	// DiskSignature identifies a valid archive header.
	DiskSignature = "FAAR"

	// DiskVersion is the only header version this build writes or accepts;
	// section.Header.Validate requires an exact match.
	DiskVersion = 1

	// HeaderSize is the fixed byte size of the disk header prefix.
	HeaderSize = 4096

	// IndexEntrySize is the on-disk size of one section.Entry.
	IndexEntrySize = 16

	// DecimatedSampleSize is the on-disk size of one {mean,min,max,std} sample.
	DecimatedSampleSize = 32

	// MaxDeltaT is the default allowed timestamp slack (microseconds)
	// between consecutive valid index entries before a gap is declared.
	MaxDeltaT = 1000

	// ServerMajor/ServerMinor are this build's protocol version. See §9's
	// preserved version-check bug in proto/version.go for how these are
	// compared against a client/peer-reported version.
	ServerMajor = 1
	ServerMinor = 1
)
