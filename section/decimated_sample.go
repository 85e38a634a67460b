package section

import "github.com/dls-controls/fa-archiver/frame"

// DecimatedSample is the {mean, min, max, std} quadruple produced by one
// decimation window (spec §3, "Decimated sample"). Both the D and DD areas
// store sequences of these, 32 bytes each.
type DecimatedSample struct {
	Mean frame.Frame
	Min  frame.Frame
	Max  frame.Frame
	Std  frame.Frame
}

// Bytes encodes the sample as 32 little-endian bytes, mean/min/max/std in
// that order to match the "data mask" bit order used by the query engine's
// per-line emission (spec §4.4 step 7).
func (s DecimatedSample) Bytes(buf []byte) []byte {
	buf = s.Mean.Bytes(buf)
	buf = s.Min.Bytes(buf)
	buf = s.Max.Bytes(buf)
	buf = s.Std.Bytes(buf)
	return buf
}

// DecodeDecimatedSample reads one 32-byte decimated sample.
func DecodeDecimatedSample(data []byte) DecimatedSample {
	return DecimatedSample{
		Mean: frame.Decode(data[0:8]),
		Min:  frame.Decode(data[8:16]),
		Max:  frame.Decode(data[16:24]),
		Std:  frame.Decode(data[24:32]),
	}
}

// DataMask selects which of {mean,min,max,std} fields a read request emits
// (spec §4.4 step 7, "data-mask"). Bit 0 = mean, bit 1 = min, bit 2 = max,
// bit 3 = std.
type DataMask uint8

const (
	DataMaskMean DataMask = 1 << iota
	DataMaskMin
	DataMaskMax
	DataMaskStd

	DataMaskAll = DataMaskMean | DataMaskMin | DataMaskMax | DataMaskStd
)

// Select appends only the masked fields, in mean/min/max/std order.
func (s DecimatedSample) Select(buf []byte, mask DataMask) []byte {
	if mask&DataMaskMean != 0 {
		buf = s.Mean.Bytes(buf)
	}
	if mask&DataMaskMin != 0 {
		buf = s.Min.Bytes(buf)
	}
	if mask&DataMaskMax != 0 {
		buf = s.Max.Bytes(buf)
	}
	if mask&DataMaskStd != 0 {
		buf = s.Std.Bytes(buf)
	}
	return buf
}
