package features

import (
	"fmt"
)

// FeatureConfig controls framing and the per-family parameters
type FeatureConfig struct {
	SampleRate     int     `json:"sample_rate" mapstructure:"sample_rate"`
	WindowSize     int     `json:"window_size" mapstructure:"n_fft"`
	HopSize        int     `json:"hop_size" mapstructure:"hop_length"`
	NumMFCC        int     `json:"n_mfcc" mapstructure:"n_mfcc"`
	NumMels        int     `json:"n_mels" mapstructure:"n_mels"`
	RolloffPercent float64 `json:"rolloff_percent" mapstructure:"rolloff_percent"`
	EstimateTuning bool    `json:"estimate_tuning" mapstructure:"estimate_tuning"`
}

// DefaultFeatureConfig returns the parameters the classifier was trained with
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate:     44100,
		WindowSize:     2048,
		HopSize:        512,
		NumMFCC:        NumMFCC,
		NumMels:        128,
		RolloffPercent: 0.85,
		EstimateTuning: true,
	}
}

// Validate rejects parameters that cannot produce a Vector
func (c FeatureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.WindowSize <= 0 || c.WindowSize%2 != 0 {
		return fmt.Errorf("window size must be positive and even: %d", c.WindowSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size must be in (0, %d]: %d", c.WindowSize, c.HopSize)
	}
	if c.NumMFCC != NumMFCC {
		return fmt.Errorf("feature vector layout requires %d MFCCs, got %d", NumMFCC, c.NumMFCC)
	}
	if c.NumMels < c.NumMFCC {
		return fmt.Errorf("n_mels (%d) must be at least n_mfcc (%d)", c.NumMels, c.NumMFCC)
	}
	if c.RolloffPercent <= 0 || c.RolloffPercent >= 1 {
		return fmt.Errorf("rolloff percent must be in (0, 1): %g", c.RolloffPercent)
	}
	return nil
}
