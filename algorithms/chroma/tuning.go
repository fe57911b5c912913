package chroma

import (
	"math"
	"slices"

	"github.com/RyanBlaney/sonido-cough/algorithms/spectral"
)

// TuningEstimator estimates the deviation of a recording from A4=440 Hz, in fractions
// of a chroma bin, from parabolically interpolated spectral peaks
type TuningEstimator struct {
	sampleRate int
	fftSize    int
	minFreq    float64 // lowest peak frequency considered
	maxFreq    float64 // peaks at or above this frequency are ignored
	threshold  float64 // peaks below threshold*frame max are ignored
	resolution float64 // histogram resolution in bins
	binsPerOct int
}

// NewTuningEstimator uses 150 Hz - 4 kHz, threshold 0.1, resolution 0.01 of a semitone
func NewTuningEstimator(sampleRate, fftSize int) *TuningEstimator {
	return &TuningEstimator{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		minFreq:    150.0,
		maxFreq:    math.Min(4000.0, float64(sampleRate)/2.0),
		threshold:  0.1,
		resolution: 0.01,
		binsPerOct: 12,
	}
}

// PitchPeak is an interpolated spectral peak
type PitchPeak struct {
	Frequency float64
	Magnitude float64
}

// TrackPitches finds interpolated local maxima in every frame of a spectrogram
// (time x frequency). Values can be power or magnitude.
func (te *TuningEstimator) TrackPitches(spectrogram [][]float64) []PitchPeak {
	freqs := spectral.FFTFrequencies(te.sampleRate, te.fftSize)
	var peaks []PitchPeak

	for _, frame := range spectrogram {
		n := len(frame)
		if n < 3 {
			continue
		}

		frameMax := 0.0
		for _, v := range frame {
			frameMax = math.Max(frameMax, math.Abs(v))
		}
		ref := te.threshold * frameMax

		gated := make([]float64, n)
		for i, v := range frame {
			if v = math.Abs(v); v > ref {
				gated[i] = v
			}
		}

		for i := range n {
			if i >= len(freqs) || freqs[i] < te.minFreq || freqs[i] >= te.maxFreq {
				continue
			}
			if !isLocalMax(gated, i) {
				continue
			}

			shift := parabolicShift(frame, i)
			peaks = append(peaks, PitchPeak{
				Frequency: (float64(i) + shift) * float64(te.sampleRate) / float64(te.fftSize),
				Magnitude: math.Abs(frame[i]) + 0.5*gradient(frame, i)*shift,
			})
		}
	}

	return peaks
}

// Estimate returns the tuning offset in [-0.5, 0.5) of a bin. Peaks weaker than the
// median peak are discarded; a spectrogram without peaks (silence) gives 0.
func (te *TuningEstimator) Estimate(spectrogram [][]float64) float64 {
	peaks := te.TrackPitches(spectrogram)

	var mags []float64
	for _, p := range peaks {
		if p.Frequency > 0 {
			mags = append(mags, p.Magnitude)
		}
	}
	if len(mags) == 0 {
		return 0.0
	}
	threshold := median(mags)

	var frequencies []float64
	for _, p := range peaks {
		if p.Frequency > 0 && p.Magnitude >= threshold {
			frequencies = append(frequencies, p.Frequency)
		}
	}

	return te.PitchTuning(frequencies)
}

// PitchTuning histograms the fractional-bin residuals of the given frequencies and
// returns the left edge of the most populated histogram bin
func (te *TuningEstimator) PitchTuning(frequencies []float64) float64 {
	bpo := float64(te.binsPerOct)
	numBins := int(math.Ceil(1.0 / te.resolution))
	counts := make([]int, numBins)
	edges := make([]float64, numBins+1)
	step := 1.0 / float64(numBins)
	for i := range edges {
		edges[i] = -0.5 + float64(i)*step
	}

	seen := false
	for _, f := range frequencies {
		if f <= 0 {
			continue
		}
		seen = true

		residual := math.Mod(bpo*hzToOctaves(f, 0, te.binsPerOct), 1.0)
		if residual < 0 {
			residual += 1.0
		}
		if residual >= 0.5 {
			residual -= 1.0
		}

		idx := int((residual - edges[0]) / step)
		idx = max(0, min(idx, numBins-1))
		// float correction so that edges[idx] <= residual < edges[idx+1]
		if residual < edges[idx] && idx > 0 {
			idx--
		} else if idx < numBins-1 && residual >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}
	if !seen {
		return 0.0
	}

	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return edges[best]
}

// hzToOctaves returns log2(f / (A440_tuned / 16)), i.e. octaves above C0-ish reference
func hzToOctaves(freq, tuning float64, binsPerOctave int) float64 {
	a440 := 440.0 * math.Pow(2.0, tuning/float64(binsPerOctave))
	return math.Log2(freq / (a440 / 16.0))
}

// isLocalMax mirrors x[i] > x[i-1] && x[i] >= x[i+1] with edge replication
func isLocalMax(x []float64, i int) bool {
	left := x[max(i-1, 0)]
	right := x[min(i+1, len(x)-1)]
	return x[i] > left && x[i] >= right
}

// parabolicShift returns the vertex offset of the parabola through x[i-1], x[i], x[i+1]
func parabolicShift(x []float64, i int) float64 {
	if i == 0 || i == len(x)-1 {
		return 0
	}
	a := x[i+1] + x[i-1] - 2*x[i]
	b := (x[i+1] - x[i-1]) / 2
	if math.Abs(b) >= math.Abs(a) {
		return 0
	}
	return -b / a
}

// gradient is the central difference, one-sided at the edges
func gradient(x []float64, i int) float64 {
	switch {
	case len(x) < 2:
		return 0
	case i == 0:
		return x[1] - x[0]
	case i == len(x)-1:
		return x[i] - x[i-1]
	default:
		return (x[i+1] - x[i-1]) / 2
	}
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
