package spectral

// SpectralCentroid computes the spectral centroid (center of mass) of a magnitude spectrum
type SpectralCentroid struct {
	sampleRate int
	freqBins   []float64 // read-only after construction
}

// NewSpectralCentroid creates a centroid calculator for spectra of an fftSize-point FFT
func NewSpectralCentroid(sampleRate, fftSize int) *SpectralCentroid {
	return &SpectralCentroid{
		sampleRate: sampleRate,
		freqBins:   FFTFrequencies(sampleRate, fftSize),
	}
}

// Compute returns sum(f*|X|)/sum(|X|). A frame with no energy has centroid 0.
func (sc *SpectralCentroid) Compute(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0.0
	}

	freqs := sc.freqBins
	if len(freqs) != len(spectrum) {
		freqs = FFTFrequencies(sc.sampleRate, (len(spectrum)-1)*2)
	}

	numerator := 0.0
	denominator := 0.0
	for i, mag := range spectrum {
		numerator += freqs[i] * mag
		denominator += mag
	}

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

// ComputeFrames processes multiple frames
func (sc *SpectralCentroid) ComputeFrames(spectrogram [][]float64) []float64 {
	centroids := make([]float64, len(spectrogram))
	for t, spectrum := range spectrogram {
		centroids[t] = sc.Compute(spectrum)
	}
	return centroids
}
