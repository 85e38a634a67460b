package proto

import (
	"testing"

	"github.com/dls-controls/fa-archiver/format"
	"github.com/stretchr/testify/require"
)

func TestParseMask(t *testing.T) {
	ids, err := ParseMask("0-3", 8)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, ids)

	ids, err = ParseMask("0-1,5", 8)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 5}, ids)

	_, err = ParseMask("0-9", 8)
	require.Error(t, err)
}

func TestFormatRawMaskRoundTrip(t *testing.T) {
	ids := []int{0, 1, 2, 3}
	hex := FormatRawMask(ids, 8)
	back, err := ParseRawMask(hex, 8)
	require.NoError(t, err)
	require.Equal(t, ids, back)
}

// TestParseReadRequest_Scenario2 matches the literal end-to-end scenario:
// "RFM0-3S1.000000N16NT" sans the leading "R" the server consumes.
func TestParseReadRequest_Scenario2(t *testing.T) {
	req, err := ParseReadRequest("FM0-3S1.000000N16NT", 8)
	require.NoError(t, err)
	require.Equal(t, format.SourceFA, req.Source)
	require.Equal(t, []int{0, 1, 2, 3}, req.Mask)
	require.Equal(t, uint64(1_000_000), req.Start.MicrosSinceEpoch)
	require.True(t, req.End.IsCount)
	require.Equal(t, uint64(16), req.End.Count)
	require.True(t, req.Options.PrependCount)
	require.True(t, req.Options.InitialTimestamp)
}

// TestParseReadRequest_Scenario3 matches "RFM0-3S1.000000N64CN" (minus "R").
func TestParseReadRequest_Scenario3(t *testing.T) {
	req, err := ParseReadRequest("FM0-3S1.000000N64CN", 8)
	require.NoError(t, err)
	require.True(t, req.Options.Contiguous)
	require.True(t, req.Options.PrependCount)
	require.Equal(t, uint64(64), req.End.Count)
}

func TestParseSubscribeRequest_Scenario4(t *testing.T) {
	req, err := ParseSubscribeRequest("0-3TEZU", 8)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, req.Mask)
	require.True(t, req.Options.ExtendedTimestamp)
	require.True(t, req.Options.IncludeID0)
	require.True(t, req.Options.Uncork)
}

func TestVersionRejectedPreservesBug(t *testing.T) {
	// Newer major, same minor: rejected, since both halves of the preserved
	// condition hold (Major > ServerMajor and Minor >= ServerMinor).
	v := Version{Major: format.ServerMajor + 1, Minor: format.ServerMinor}
	require.True(t, v.Rejected())

	// Same major, older minor: neither half holds, so it is accepted.
	v = Version{Major: format.ServerMajor, Minor: format.ServerMinor - 1}
	require.False(t, v.Rejected())
}
