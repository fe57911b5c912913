package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-cough/features"
)

// Scaler standardises feature vectors: scaled[i] = (raw[i] - Mean[i]) / Scale[i]
type Scaler struct {
	Mean  []float64 `json:"mean" msgpack:"mean"`
	Scale []float64 `json:"scale" msgpack:"scale"`
}

// NewScaler copies and validates the parameters
func NewScaler(mean, scale []float64) (*Scaler, error) {
	s := &Scaler{
		Mean:  append([]float64(nil), mean...),
		Scale: append([]float64(nil), scale...),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadScaler reads scaler parameters from a .json or .msgpack file
func LoadScaler(path string) (*Scaler, error) {
	var s Scaler
	if err := decodeFile(path, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Save writes the scaler, encoding chosen by extension
func (s *Scaler) Save(path string) error {
	return encodeFile(path, s)
}

// Validate checks lengths and that every scale is usable as a divisor
func (s *Scaler) Validate() error {
	if len(s.Mean) != features.Size {
		return fmt.Errorf("scaler mean has %d values, expected %d: %w", len(s.Mean), features.Size, ErrInvalidArtifact)
	}
	if len(s.Scale) != features.Size {
		return fmt.Errorf("scaler scale has %d values, expected %d: %w", len(s.Scale), features.Size, ErrInvalidArtifact)
	}
	if floats.HasNaN(s.Mean) || floats.HasNaN(s.Scale) {
		return fmt.Errorf("scaler contains NaN: %w", ErrInvalidArtifact)
	}
	for i, v := range s.Scale {
		if v == 0 || math.IsInf(v, 0) {
			return fmt.Errorf("scaler scale[%d] = %v: %w", i, v, ErrInvalidArtifact)
		}
	}
	return nil
}

// Transform returns the standardised vector
func (s *Scaler) Transform(v features.Vector) features.Vector {
	var out features.Vector
	for i := range out {
		out[i] = (v[i] - s.Mean[i]) / s.Scale[i]
	}
	return out
}
