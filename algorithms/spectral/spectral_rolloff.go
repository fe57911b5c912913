package spectral

// SpectralRolloff computes the frequency below which a given fraction of a frame's
// spectral magnitude is concentrated
type SpectralRolloff struct {
	sampleRate int
	freqBins   []float64 // read-only after construction
}

// NewSpectralRolloff creates a rolloff calculator for spectra of an fftSize-point FFT
func NewSpectralRolloff(sampleRate, fftSize int) *SpectralRolloff {
	return &SpectralRolloff{
		sampleRate: sampleRate,
		freqBins:   FFTFrequencies(sampleRate, fftSize),
	}
}

// Compute returns the frequency of the first bin whose cumulative magnitude reaches
// rollPercent of the total (typically 0.85). Magnitudes are accumulated directly,
// not squared. A silent frame yields the lowest bin frequency (0 Hz).
func (sr *SpectralRolloff) Compute(spectrum []float64, rollPercent float64) float64 {
	if len(spectrum) == 0 {
		return 0.0
	}

	freqs := sr.freqBins
	if len(freqs) != len(spectrum) {
		freqs = FFTFrequencies(sr.sampleRate, (len(spectrum)-1)*2)
	}

	total := 0.0
	for _, mag := range spectrum {
		total += mag
	}

	target := rollPercent * total
	cumulative := 0.0
	for i, mag := range spectrum {
		cumulative += mag
		if cumulative >= target {
			return freqs[i]
		}
	}

	return freqs[len(freqs)-1]
}

// ComputeFrames processes multiple frames
func (sr *SpectralRolloff) ComputeFrames(spectrogram [][]float64, rollPercent float64) []float64 {
	rolloffs := make([]float64, len(spectrogram))
	for t, spectrum := range spectrogram {
		rolloffs[t] = sr.Compute(spectrum, rollPercent)
	}
	return rolloffs
}
