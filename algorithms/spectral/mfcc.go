package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients from a power spectrogram:
// mel filter bank -> decibels (clamped to TopDB below the clip peak) -> DCT-II (orthonormal).
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int
	lowFreq         float64
	highFreq        float64
	db              DBParams

	// Internal components
	melScale    *MelScale
	filterBank  [][]float64
	dctMatrix   [][]float64
	fftSize     int
	initialized bool
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int      `json:"num_coefficients"` // default 13
	NumMelFilters   int      `json:"num_mel_filters"`  // default 128
	LowFreq         float64  `json:"low_freq"`         // default 0
	HighFreq        float64  `json:"high_freq"`        // default sampleRate/2
	DB              DBParams `json:"db"`
}

// NewMFCC creates a new MFCC computer with default parameters
func NewMFCC(sampleRate, numCoefficients int) *MFCC {
	return NewMFCCWithParams(sampleRate, MFCCParams{
		NumCoefficients: numCoefficients,
		NumMelFilters:   128,
		HighFreq:        float64(sampleRate) / 2.0,
		DB:              DefaultDBParams(),
	})
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate int, params MFCCParams) *MFCC {
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 13
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.DB == (DBParams{}) {
		params.DB = DefaultDBParams()
	}

	return &MFCC{
		numCoefficients: params.NumCoefficients,
		numMelFilters:   params.NumMelFilters,
		sampleRate:      sampleRate,
		lowFreq:         params.LowFreq,
		highFreq:        params.HighFreq,
		db:              params.DB,
		melScale:        NewMelScale(),
	}
}

// Initialize prepares the filter bank and DCT matrix for the given FFT size
func (mfcc *MFCC) Initialize(fftSize int) error {
	if fftSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", fftSize)
	}
	if mfcc.numCoefficients > mfcc.numMelFilters {
		return fmt.Errorf("cannot take %d coefficients from %d mel bands", mfcc.numCoefficients, mfcc.numMelFilters)
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		mfcc.numMelFilters,
		fftSize,
		mfcc.sampleRate,
		mfcc.lowFreq,
		mfcc.highFreq,
	)

	if len(mfcc.filterBank) == 0 {
		return fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.createDCTMatrix()

	mfcc.fftSize = fftSize
	mfcc.initialized = true
	return nil
}

// ComputeFromPower returns one coefficient vector per frame of a power spectrogram
func (mfcc *MFCC) ComputeFromPower(power [][]float64) ([][]float64, error) {
	if len(power) == 0 {
		return nil, fmt.Errorf("empty power spectrogram")
	}

	fftSize := (len(power[0]) - 1) * 2
	if !mfcc.initialized || mfcc.fftSize != fftSize {
		if err := mfcc.Initialize(fftSize); err != nil {
			return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
		}
	}

	melSpectrogram := mfcc.melScale.ComputeMelSpectrogram(power, mfcc.filterBank)
	logMel := NewPowerSpectrum().PowerToDB(melSpectrogram, mfcc.db)

	frames := make([][]float64, len(logMel))
	for t, frame := range logMel {
		frames[t] = mfcc.applyDCT(frame)
	}

	return frames, nil
}

// ComputeFrames processes a magnitude spectrogram
func (mfcc *MFCC) ComputeFrames(spectrogram [][]float64) ([][]float64, error) {
	return mfcc.ComputeFromPower(NewPowerSpectrum().ComputeFrames(spectrogram))
}

// createDCTMatrix builds an orthonormal DCT-II basis (numCoefficients x numMelFilters)
func (mfcc *MFCC) createDCTMatrix() {
	mfcc.dctMatrix = make([][]float64, mfcc.numCoefficients)
	n := float64(mfcc.numMelFilters)

	for k := range mfcc.numCoefficients {
		mfcc.dctMatrix[k] = make([]float64, mfcc.numMelFilters)

		scale := math.Sqrt(2.0 / n)
		if k == 0 {
			scale = math.Sqrt(1.0 / n)
		}

		for i := range mfcc.numMelFilters {
			mfcc.dctMatrix[k][i] = scale * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/n)
		}
	}
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	mfccCoeffs := make([]float64, mfcc.numCoefficients)

	for k, basis := range mfcc.dctMatrix {
		sum := 0.0
		for n := 0; n < len(logMelSpectrum) && n < len(basis); n++ {
			sum += logMelSpectrum[n] * basis[n]
		}
		mfccCoeffs[k] = sum
	}

	return mfccCoeffs
}
