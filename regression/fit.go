// Package regression fits the capture timestamps of a major block to a
// line, producing the block's duration and start timestamp (spec §4.3
// step 5). The teacher's regression package fits archive blob size against
// points-per-metric to choose a storage strategy; this package is a single
// Fit type with FitBlockTiming and SmoothDuration for a different
// regression problem, using gonum.org/v1/gonum/floats for the summations
// instead of hand-rolled loops.
package regression

import "gonum.org/v1/gonum/floats"

// Fit holds the least-squares result for one major block's timestamp array
// (spec §4.3 step 5).
type Fit struct {
	// DurationUS is the estimated span of the block in microseconds:
	// 2*N*Sum(x*t) / Sum(t^2), t centered so Sum(t) = 0.
	DurationUS float64
	// TimestampUS is the estimated timestamp of the first sample:
	// Sum(x)/N - (N-1)*Sum(x*t) / Sum(t^2).
	TimestampUS float64
}

// FitBlockTiming fits the capture timestamps (in microseconds, one per
// equally spaced sample point; the block transform passes one per input
// block) of a single major block against their index sequence, per the
// formula in spec §4.3 step 5. The index is centered as t_i = 2i-(N+1) for
// i = 1..N, so Sum(t) = 0 and Sum(x*t)/Sum(t^2) is the actual least-squares
// slope (an uncentered t = 1..N makes that ratio the wrong quantity). An
// empty slice yields NaN in both fields; callers only invoke this once a
// full major block has been accumulated, so N > 0 always holds.
func FitBlockTiming(timestampsUS []float64) Fit {
	n := len(timestampsUS)
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(2*(i+1) - (n + 1))
	}

	sumX := floats.Sum(timestampsUS)
	sumXT := floats.Dot(timestampsUS, t)
	sumT2 := floats.Dot(t, t)

	nf := float64(n)
	slope := sumXT / sumT2
	duration := 2 * nf * slope
	timestamp := sumX/nf - (nf-1)*slope

	return Fit{DurationUS: duration, TimestampUS: timestamp}
}

// SmoothDuration applies the IIR smoothing of spec §4.3 step 5:
// last_duration <- round(alpha*duration + (1-alpha)*last_duration).
func SmoothDuration(alpha float64, duration float64, lastDuration uint32) uint32 {
	v := alpha*duration + (1-alpha)*float64(lastDuration)
	return uint32(roundHalfAwayFromZero(v))
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundHalfAwayFromZero(-v)
	}
	return float64(int64(v + 0.5))
}
