package transform

import "math"

func sqrt(v float64) float64 { return math.Sqrt(v) }

func roundToInt32(v float64) int32 { return int32(math.Round(v)) }
