package spectral

import (
	"math"
)

// Slaney (Auditory Toolbox) mel scale constants: linear below 1 kHz, logarithmic above
const (
	slaneyFSp       = 200.0 / 3.0
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27.0

// MelScale provides Slaney mel frequency conversion and filter banks
type MelScale struct{}

// NewMelScale creates a Slaney mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if hz >= slaneyMinLogHz {
		return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
	}
	return hz / slaneyFSp
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if mel >= slaneyMinLogMel {
		return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
	}
	return slaneyFSp * mel
}

// MelFrequencies returns n frequencies equally spaced on the mel scale between
// lowFreq and highFreq, both inclusive
func (ms *MelScale) MelFrequencies(n int, lowFreq, highFreq float64) []float64 {
	if n <= 0 {
		return nil
	}
	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	freqs := make([]float64, n)
	if n == 1 {
		freqs[0] = ms.MelToHz(lowMel)
		return freqs
	}
	step := (highMel - lowMel) / float64(n-1)
	for i := range freqs {
		freqs[i] = ms.MelToHz(lowMel + float64(i)*step)
	}
	return freqs
}

// CreateMelFilterBank creates a numFilters x (fftSize/2+1) bank of triangular filters.
// Triangles are evaluated on continuous frequencies (not snapped to bins) and scaled
// to unit area (Slaney normalisation), so band energy does not grow with bandwidth.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 {
		return nil
	}
	if highFreq <= 0 {
		highFreq = float64(sampleRate) / 2.0
	}

	fftFreqs := FFTFrequencies(sampleRate, fftSize)
	melF := ms.MelFrequencies(numFilters+2, lowFreq, highFreq)

	fdiff := make([]float64, len(melF)-1)
	for i := range fdiff {
		fdiff[i] = melF[i+1] - melF[i]
	}

	filterBank := make([][]float64, numFilters)
	for m := range numFilters {
		filterBank[m] = make([]float64, len(fftFreqs))
		enorm := 2.0 / (melF[m+2] - melF[m])

		for k, f := range fftFreqs {
			lower := (f - melF[m]) / fdiff[m]
			upper := (melF[m+2] - f) / fdiff[m+1]
			w := math.Max(0, math.Min(lower, upper))
			filterBank[m][k] = w * enorm
		}
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// ComputeMelSpectrogram maps a power spectrogram onto the filter bank frame by frame
func (ms *MelScale) ComputeMelSpectrogram(power [][]float64, filterBank [][]float64) [][]float64 {
	mel := make([][]float64, len(power))
	for t, frame := range power {
		mel[t] = ms.ApplyFilterBank(frame, filterBank)
	}
	return mel
}
