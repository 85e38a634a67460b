package transform

import (
	"github.com/dls-controls/fa-archiver/frame"
	"github.com/dls-controls/fa-archiver/internal/bigint"
	"github.com/dls-controls/fa-archiver/section"
)

// accumulator gathers the running {count, sum, min, max, sum-of-squares}
// statistics for one decimation window of one archived id (spec §4.3 step
// 3, "Single decimate"). The same shape serves both the first- and
// second-decimation windows (spec §4.3 step 4): a fresh accumulator is
// reset after every 2^decimation_log2 rows.
type accumulator struct {
	count int

	sumX, sumY int64
	minX, minY int32
	maxX, maxY int32
	ssqX, ssqY bigint.Int128

	orX, orY int32 // bitwise-OR path for the configured events id (spec §4.3, "Event-code handling")
}

func newAccumulator() accumulator {
	return accumulator{minX: math32Max, minY: math32Max, maxX: math32Min, maxY: math32Min}
}

const (
	math32Max = int32(1<<31 - 1)
	math32Min = -int32(1<<31 - 1) - 1
)

// Add folds one raw frame into the window.
func (a *accumulator) Add(f frame.Frame) {
	a.count++
	a.sumX += int64(f.X)
	a.sumY += int64(f.Y)
	a.ssqX = a.ssqX.AddSquare(f.X)
	a.ssqY = a.ssqY.AddSquare(f.Y)
	if f.X < a.minX {
		a.minX = f.X
	}
	if f.X > a.maxX {
		a.maxX = f.X
	}
	if f.Y < a.minY {
		a.minY = f.Y
	}
	if f.Y > a.maxY {
		a.maxY = f.Y
	}
	a.orX |= f.X
	a.orY |= f.Y
}

// Finish computes the {mean,min,max,std} quadruple for the window. When
// event is true, every field is replaced by the bitwise-OR of the inputs
// (spec §4.3, "Event-code handling").
func (a accumulator) Finish(event bool) section.DecimatedSample {
	if event {
		orFrame := frame.Frame{X: a.orX, Y: a.orY}
		return section.DecimatedSample{Mean: orFrame, Min: orFrame, Max: orFrame, Std: orFrame}
	}

	n := float64(a.count)
	meanX := float64(a.sumX) / n
	meanY := float64(a.sumY) / n
	stdX := stddev(a.ssqX.ToFloat64(), meanX, n)
	stdY := stddev(a.ssqY.ToFloat64(), meanY, n)

	return section.DecimatedSample{
		Mean: frame.Frame{X: roundToInt32(meanX), Y: roundToInt32(meanY)},
		Min:  frame.Frame{X: a.minX, Y: a.minY},
		Max:  frame.Frame{X: a.maxX, Y: a.maxY},
		Std:  frame.Frame{X: roundToInt32(stdX), Y: roundToInt32(stdY)},
	}
}

// stddev implements spec §4.3 step 3: std = round(sqrt(max(0, ssq/N - mean^2))).
func stddev(ssq, mean, n float64) float64 {
	v := ssq/n - mean*mean
	if v < 0 {
		v = 0
	}
	return sqrt(v)
}
