package decimate

import "github.com/dls-controls/fa-archiver/frame"

// FIR is the compensation filter applied to a CIC decimator's output to
// flatten its passband droop (spec §6, "compensation_filter[]"). The
// coefficients themselves are an out-of-scope DSP detail (spec §1); this is
// a direct-form convolution over whatever taps the config supplies.
type FIR struct {
	taps       []float64
	historyX   []float64
	historyY   []float64
	pos        int
	decimation int
	counter    int
}

// NewFIR builds a FIR filter with the given taps, optionally further
// decimating its output by decimation (spec §6, "filter_decimation";
// 0 or 1 means no further decimation).
func NewFIR(taps []float64, decimation int) *FIR {
	if decimation < 1 {
		decimation = 1
	}
	if len(taps) == 0 {
		taps = []float64{1}
	}
	return &FIR{
		taps:       taps,
		historyX:   make([]float64, len(taps)),
		historyY:   make([]float64, len(taps)),
		decimation: decimation,
	}
}

// Add feeds one CIC-rate frame into the filter. It returns a filtered frame
// and true whenever the (possibly further-decimated) output is ready.
func (f *FIR) Add(in frame.Frame) (frame.Frame, bool) {
	f.historyX[f.pos] = float64(in.X)
	f.historyY[f.pos] = float64(in.Y)

	f.counter++
	if f.counter%f.decimation != 0 {
		f.pos = (f.pos + 1) % len(f.taps)
		return frame.Frame{}, false
	}

	var accX, accY float64
	idx := f.pos
	for _, tap := range f.taps {
		accX += tap * f.historyX[idx]
		accY += tap * f.historyY[idx]
		idx--
		if idx < 0 {
			idx = len(f.taps) - 1
		}
	}
	f.pos = (f.pos + 1) % len(f.taps)

	return frame.Frame{X: int32(roundHalfAwayFromZero(accX)), Y: int32(roundHalfAwayFromZero(accY))}, true
}

func roundHalfAwayFromZero(v float64) float64 {
	if v < 0 {
		return -roundPositive(-v)
	}
	return roundPositive(v)
}

func roundPositive(v float64) float64 {
	return float64(int64(v + 0.5))
}
