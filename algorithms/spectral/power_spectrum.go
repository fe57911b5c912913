package spectral

import (
	"math"
)

// PowerSpectrum converts magnitude spectra to power and decibel scale
type PowerSpectrum struct{}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// Compute computes |X|^2 from a magnitude spectrum
func (ps *PowerSpectrum) Compute(magnitudeSpectrum []float64) []float64 {
	power := make([]float64, len(magnitudeSpectrum))
	for i, mag := range magnitudeSpectrum {
		power[i] = mag * mag
	}
	return power
}

// ComputeFrames processes multiple magnitude spectrum frames
func (ps *PowerSpectrum) ComputeFrames(spectrogram [][]float64) [][]float64 {
	power := make([][]float64, len(spectrogram))
	for t, magnitudeSpectrum := range spectrogram {
		power[t] = ps.Compute(magnitudeSpectrum)
	}
	return power
}

// DBParams controls power-to-decibel conversion
type DBParams struct {
	Ref   float64 `json:"ref"`    // reference power, 0 dB
	Amin  float64 `json:"amin"`   // floor applied before the logarithm
	TopDB float64 `json:"top_db"` // dynamic range kept below the global peak; <= 0 disables
}

// DefaultDBParams returns ref=1, amin=1e-10, top_db=80
func DefaultDBParams() DBParams {
	return DBParams{Ref: 1.0, Amin: 1e-10, TopDB: 80.0}
}

// PowerToDB converts a power spectrogram to decibels in place of a copy.
// The top_db clamp is taken relative to the peak over the whole matrix, not per frame.
func (ps *PowerSpectrum) PowerToDB(power [][]float64, params DBParams) [][]float64 {
	if params.Amin <= 0 {
		params.Amin = 1e-10
	}
	if params.Ref <= 0 {
		params.Ref = 1.0
	}
	refDB := 10.0 * math.Log10(math.Max(params.Amin, params.Ref))

	peak := math.Inf(-1)
	db := make([][]float64, len(power))
	for t, frame := range power {
		db[t] = make([]float64, len(frame))
		for f, p := range frame {
			v := 10.0*math.Log10(math.Max(params.Amin, p)) - refDB
			db[t][f] = v
			if v > peak {
				peak = v
			}
		}
	}

	if params.TopDB > 0 {
		floor := peak - params.TopDB
		for t := range db {
			for f, v := range db[t] {
				if v < floor {
					db[t][f] = floor
				}
			}
		}
	}

	return db
}
