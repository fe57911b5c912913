package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Norm(data, 2) / math.Sqrt(float64(len(data)))
}

// Peak returns the largest absolute sample value
func Peak(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		peak = math.Max(peak, math.Abs(v))
	}
	return peak
}

// FrameMeans averages a time x dimension matrix over time, returning one value per dimension
func FrameMeans(frames [][]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}

	dims := len(frames[0])
	means := make([]float64, dims)
	column := make([]float64, len(frames))
	for d := range dims {
		for t, frame := range frames {
			column[t] = frame[d]
		}
		means[d] = stat.Mean(column, nil)
	}
	return means
}

// AllFinite reports whether no value is NaN or infinite
func AllFinite(data []float64) bool {
	if floats.HasNaN(data) {
		return false
	}
	for _, v := range data {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp restricts value to [min, max]
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
