package spectral

import (
	"math"
)

// ZeroCrossingRate computes the per-frame fraction of sign changes in a waveform
type ZeroCrossingRate struct {
	frameSize int
	hopSize   int
	center    bool
	threshold float64 // |x| <= threshold counts as zero (non-negative)
}

// NewZeroCrossingRate creates a calculator with frame 2048, hop 512, centered frames
func NewZeroCrossingRate() *ZeroCrossingRate {
	return NewZeroCrossingRateWithParams(2048, 512, true)
}

// NewZeroCrossingRateWithParams creates calculator with custom parameters
func NewZeroCrossingRateWithParams(frameSize, hopSize int, center bool) *ZeroCrossingRate {
	return &ZeroCrossingRate{
		frameSize: frameSize,
		hopSize:   hopSize,
		center:    center,
		threshold: 1e-10,
	}
}

// negative reports the sign bit used for crossing detection
func (zcr *ZeroCrossingRate) negative(x float64) bool {
	if math.Abs(x) <= zcr.threshold {
		return false
	}
	return x < 0
}

// Compute returns crossings / len(frame) for a single frame
func (zcr *ZeroCrossingRate) Compute(frame []float64) float64 {
	if len(frame) < 2 {
		return 0.0
	}

	crossings := 0
	prev := zcr.negative(frame[0])
	for i := 1; i < len(frame); i++ {
		cur := zcr.negative(frame[i])
		if cur != prev {
			crossings++
		}
		prev = cur
	}

	return float64(crossings) / float64(len(frame))
}

// ComputeFrames calculates ZCR for overlapping frames of a signal. Centered framing
// pads frameSize/2 copies of the edge samples on both sides, so the frame count
// matches a centered STFT with the same hop.
func (zcr *ZeroCrossingRate) ComputeFrames(signal []float64) []float64 {
	if len(signal) == 0 {
		return []float64{}
	}
	if zcr.center {
		signal = PadSignal(signal, zcr.frameSize/2, PadEdge)
	}
	if len(signal) < zcr.frameSize {
		return []float64{}
	}

	numFrames := (len(signal)-zcr.frameSize)/zcr.hopSize + 1
	zcrValues := make([]float64, numFrames)

	for i := range numFrames {
		start := i * zcr.hopSize
		zcrValues[i] = zcr.Compute(signal[start : start+zcr.frameSize])
	}

	return zcrValues
}
