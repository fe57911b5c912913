package chroma

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-cough/algorithms/spectral"
)

// ChromaSTFT computes a chromagram from a power spectrogram.
//
// Every FFT bin contributes to all 12 pitch classes through a Gaussian bump centred on
// its fractional pitch, weighted towards the octaves around C5. Frames are scaled so
// their strongest pitch class is 1.
type ChromaSTFT struct {
	sampleRate     int
	fftSize        int
	chromaBins     int
	centerOctave   float64 // octave (counted from C0) of the octave weighting peak
	octaveWidth    float64 // gaussian width of the octave weighting, in octaves
	estimateTuning bool

	tuner *TuningEstimator
	// filters for tuning 0, built once so concurrent calls only read them
	baseFilters [][]float64
}

// ChromaParams controls the filter bank
type ChromaParams struct {
	FFTSize        int     `json:"fft_size"`
	CenterOctave   float64 `json:"center_octave"`
	OctaveWidth    float64 `json:"octave_width"`
	EstimateTuning bool    `json:"estimate_tuning"`
}

// DefaultChromaParams returns n_fft 2048, center octave 5, width 2, tuning estimation on
func DefaultChromaParams() ChromaParams {
	return ChromaParams{
		FFTSize:        2048,
		CenterOctave:   5.0,
		OctaveWidth:    2.0,
		EstimateTuning: true,
	}
}

// NewChromaSTFT creates a chromagram calculator for the given sample rate
func NewChromaSTFT(sampleRate int, params ChromaParams) *ChromaSTFT {
	if params.FFTSize <= 0 {
		params.FFTSize = 2048
	}
	cs := &ChromaSTFT{
		sampleRate:     sampleRate,
		fftSize:        params.FFTSize,
		chromaBins:     12,
		centerOctave:   params.CenterOctave,
		octaveWidth:    params.OctaveWidth,
		estimateTuning: params.EstimateTuning,
		tuner:          NewTuningEstimator(sampleRate, params.FFTSize),
	}
	cs.baseFilters = cs.FilterBank(0.0)
	return cs
}

// NewChromaSTFTDefault creates a chromagram calculator with default parameters
func NewChromaSTFTDefault(sampleRate int) *ChromaSTFT {
	return NewChromaSTFT(sampleRate, DefaultChromaParams())
}

// ComputeChroma runs the STFT on a signal and returns its chromagram (time x 12)
func (cs *ChromaSTFT) ComputeChroma(signal []float64, params spectral.STFTParams, window spectral.Window) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if params.WindowSize != cs.fftSize {
		return nil, fmt.Errorf("window size %d does not match chroma FFT size %d", params.WindowSize, cs.fftSize)
	}

	stftResult, err := spectral.NewSTFT().ComputeWithWindow(signal, params, cs.sampleRate, window)
	if err != nil {
		return nil, err
	}

	chromagram, _, err := cs.ComputeFromPower(stftResult.Power())
	return chromagram, err
}

// ComputeFromPower maps a power spectrogram (time x (fftSize/2+1)) to pitch classes.
// It also returns the tuning offset that was used.
func (cs *ChromaSTFT) ComputeFromPower(power [][]float64) ([][]float64, float64, error) {
	if len(power) == 0 {
		return nil, 0, fmt.Errorf("empty power spectrogram")
	}
	freqBins := cs.fftSize/2 + 1
	if len(power[0]) != freqBins {
		return nil, 0, fmt.Errorf("power spectrogram has %d bins, expected %d", len(power[0]), freqBins)
	}

	tuning := 0.0
	filters := cs.baseFilters
	if cs.estimateTuning {
		tuning = cs.tuner.Estimate(power)
		if tuning != 0 {
			filters = cs.FilterBank(tuning)
		}
	}

	chromagram := make([][]float64, len(power))
	for t, frame := range power {
		chromagram[t] = make([]float64, cs.chromaBins)
		for c, weights := range filters {
			sum := 0.0
			for k, w := range weights {
				sum += w * frame[k]
			}
			chromagram[t][c] = sum
		}
		normalizeMax(chromagram[t])
	}

	return chromagram, tuning, nil
}

// FilterBank returns the chroma filter bank (12 x (fftSize/2+1)) for a tuning offset
// in fractions of a bin. Row 0 is C.
func (cs *ChromaSTFT) FilterBank(tuning float64) [][]float64 {
	n := cs.fftSize
	nChroma := float64(cs.chromaBins)

	// fractional pitch of every bin; bin 0 is placed 1.5 octaves below bin 1
	frqBins := make([]float64, n)
	for k := 1; k < n; k++ {
		freq := float64(k) * float64(cs.sampleRate) / float64(n)
		frqBins[k] = nChroma * hzToOctaves(freq, tuning, cs.chromaBins)
	}
	frqBins[0] = frqBins[1] - 1.5*nChroma

	binWidth := make([]float64, n)
	for k := 0; k < n-1; k++ {
		binWidth[k] = math.Max(frqBins[k+1]-frqBins[k], 1.0)
	}
	binWidth[n-1] = 1.0

	half := math.Round(nChroma / 2.0)
	weights := make([][]float64, cs.chromaBins)
	for c := range weights {
		weights[c] = make([]float64, n)
		for k := range n {
			d := math.Mod(frqBins[k]-float64(c)+half+10*nChroma, nChroma)
			if d < 0 {
				d += nChroma
			}
			d -= half
			x := 2.0 * d / binWidth[k]
			weights[c][k] = math.Exp(-0.5 * x * x)
		}
	}

	// unit L2 norm per bin
	for k := range n {
		norm := 0.0
		for c := range weights {
			norm += weights[c][k] * weights[c][k]
		}
		norm = math.Sqrt(norm)
		if norm < tiny {
			continue
		}
		for c := range weights {
			weights[c][k] /= norm
		}
	}

	if cs.octaveWidth > 0 {
		for k := range n {
			x := (frqBins[k]/nChroma - cs.centerOctave) / cs.octaveWidth
			g := math.Exp(-0.5 * x * x)
			for c := range weights {
				weights[c][k] *= g
			}
		}
	}

	// rows above are A-based; rotate by 3 so row 0 is C, and keep positive frequencies
	freqBins := n/2 + 1
	bank := make([][]float64, cs.chromaBins)
	for c := range bank {
		bank[c] = make([]float64, freqBins)
		copy(bank[c], weights[(c+3)%cs.chromaBins][:freqBins])
	}
	return bank
}

// smallest normal float64, the threshold below which a vector is left unnormalized
const tiny = 2.2250738585072014e-308

func normalizeMax(frame []float64) {
	peak := 0.0
	for _, v := range frame {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak < tiny {
		return
	}
	for i := range frame {
		frame[i] /= peak
	}
}

// GetChromaLabels returns the chroma bin labels
func (cs *ChromaSTFT) GetChromaLabels() []string {
	return []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
}

// GetDominantChroma finds the dominant chroma for each time frame
func (cs *ChromaSTFT) GetDominantChroma(chromagram [][]float64) []int {
	dominantChroma := make([]int, len(chromagram))

	for t, chromaFrame := range chromagram {
		maxEnergy := 0.0
		maxBin := 0

		for bin, energy := range chromaFrame {
			if energy > maxEnergy {
				maxEnergy = energy
				maxBin = bin
			}
		}

		dominantChroma[t] = maxBin
	}

	return dominantChroma
}
