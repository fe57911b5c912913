package features

import (
	"fmt"
)

// Vector layout
const (
	NumMFCC   = 13
	NumChroma = 12
	Size      = NumMFCC + 1 + 1 + NumChroma + 1

	OffsetMFCC     = 0
	OffsetCentroid = OffsetMFCC + NumMFCC
	OffsetZCR      = OffsetCentroid + 1
	OffsetChroma   = OffsetZCR + 1
	OffsetRolloff  = OffsetChroma + NumChroma
)

// Vector is the per-clip feature vector:
// [0:13] MFCC means, [13] centroid mean, [14] ZCR mean, [15:27] chroma means C..B,
// [27] rolloff mean
type Vector [Size]float64

var chromaLabels = [NumChroma]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// MFCC returns the MFCC means
func (v Vector) MFCC() []float64 { return v[OffsetMFCC:OffsetCentroid] }

// Centroid returns the spectral centroid mean in Hz
func (v Vector) Centroid() float64 { return v[OffsetCentroid] }

// ZCR returns the zero-crossing-rate mean
func (v Vector) ZCR() float64 { return v[OffsetZCR] }

// Chroma returns the chroma means, C first
func (v Vector) Chroma() []float64 { return v[OffsetChroma:OffsetRolloff] }

// Rolloff returns the spectral rolloff mean in Hz
func (v Vector) Rolloff() float64 { return v[OffsetRolloff] }

// Slice returns a copy as a slice
func (v Vector) Slice() []float64 {
	out := make([]float64, Size)
	copy(out, v[:])
	return out
}

// VectorFromSlice copies exactly Size values into a Vector
func VectorFromSlice(values []float64) (Vector, error) {
	var v Vector
	if len(values) != Size {
		return v, fmt.Errorf("feature vector needs %d values, got %d", Size, len(values))
	}
	copy(v[:], values)
	return v, nil
}

// Names returns a label for every position of the vector
func Names() []string {
	names := make([]string, 0, Size)
	for i := range NumMFCC {
		names = append(names, fmt.Sprintf("mfcc_%d", i+1))
	}
	names = append(names, "spectral_centroid", "zero_crossing_rate")
	for _, label := range chromaLabels {
		names = append(names, "chroma_"+label)
	}
	return append(names, "spectral_rolloff")
}
