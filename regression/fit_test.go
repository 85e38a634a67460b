package regression_test

import (
	"testing"

	"github.com/dls-controls/fa-archiver/regression"
	"github.com/stretchr/testify/require"
)

func TestFitBlockTiming_Regular(t *testing.T) {
	// A perfectly regular stream sampled every 10us starting at 1_000_000us,
	// 16 rows per major block (spec §8 scenario 1).
	const n = 16
	const spacing = 10.0
	const start = 1_000_000.0

	ts := make([]float64, n)
	for i := range ts {
		ts[i] = start + float64(i)*spacing
	}

	fit := regression.FitBlockTiming(ts)

	require.InDelta(t, n*spacing, fit.DurationUS, 1e-6)
	require.InDelta(t, start, fit.TimestampUS, 1e-6)
}

func TestSmoothDuration(t *testing.T) {
	got := regression.SmoothDuration(0.5, 100, 80)
	require.Equal(t, uint32(90), got)
}
