package transcode

import (
	"context"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-cough/algorithms/temporal"
	"github.com/RyanBlaney/sonido-cough/logging"
)

// Waveform is a mono clip of exactly SampleRate*Duration samples
type Waveform struct {
	Samples    []float64     `json:"-" yaml:"-"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Duration   time.Duration `json:"duration" yaml:"duration"`

	SourceSampleRate int    `json:"source_sample_rate" yaml:"source_sample_rate"`
	SourceSamples    int    `json:"source_samples" yaml:"source_samples"` // decoded samples at SampleRate before length fixing
	Padded           bool   `json:"padded" yaml:"padded"`
	Truncated        bool   `json:"truncated" yaml:"truncated"`
	Format           string `json:"format,omitempty" yaml:"format,omitempty"`
	ContentType      string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Backend          string `json:"backend,omitempty" yaml:"backend,omitempty"`

	Level temporal.LevelSummary `json:"level" yaml:"level"`
}

// Normalizer decodes audio and fixes it to a constant length
type Normalizer struct {
	decoder    Decoder
	sampleRate int
	duration   time.Duration
	energy     *temporal.Energy
}

// NewNormalizer creates a normalizer producing sampleRate*duration samples
func NewNormalizer(decoder Decoder, sampleRate int, duration time.Duration) (*Normalizer, error) {
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	if TargetLength(sampleRate, duration) <= 0 {
		return nil, fmt.Errorf("duration too short: %v", duration)
	}
	return &Normalizer{
		decoder:    decoder,
		sampleRate: sampleRate,
		duration:   duration,
		energy:     temporal.NewEnergy(2048, 512),
	}, nil
}

// SampleRate returns the output sample rate
func (n *Normalizer) SampleRate() int { return n.sampleRate }

// Duration returns the output duration
func (n *Normalizer) Duration() time.Duration { return n.duration }

// Normalize decodes the first Duration of data and truncates or zero-pads it at the tail
func (n *Normalizer) Normalize(ctx context.Context, data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	audio, err := n.decoder.Decode(ctx, data, n.duration)
	if err != nil {
		return nil, err
	}
	if audio.SampleRate != n.sampleRate {
		return nil, fmt.Errorf("decoder returned %d Hz, expected %d Hz", audio.SampleRate, n.sampleRate)
	}

	waveform := n.fromDecoded(audio.PCM)
	waveform.Truncated = waveform.Truncated || audio.Truncated
	waveform.SourceSampleRate = audio.SourceSampleRate
	waveform.Format = audio.Format
	waveform.ContentType = ContentTypeForContainer(audio.Format)
	waveform.Backend = audio.Backend

	logging.WithFields(logging.Fields{
		"component": "audio_normalizer",
		"function":  "Normalize",
	}).Debug("Waveform normalized", logging.Fields{
		"format":         waveform.Format,
		"backend":        waveform.Backend,
		"source_rate":    waveform.SourceSampleRate,
		"source_samples": waveform.SourceSamples,
		"padded":         waveform.Padded,
		"truncated":      waveform.Truncated,
		"rms_db":         waveform.Level.RMSdB,
		"silent":         waveform.Level.Silent,
	})

	return waveform, nil
}

// FromSamples length-fixes an in-memory mono signal, resampling it first when its rate
// differs from the output rate. Only the first Duration of samples is resampled.
func (n *Normalizer) FromSamples(samples []float64, sampleRate int) (*Waveform, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	limited, cut := limitSource(samples, n.duration, sampleRate)
	resampled, err := Resample(limited, sampleRate, n.sampleRate, n.decoder.Config().ResampleQuality)
	if err != nil {
		return nil, err
	}

	waveform := n.fromDecoded(resampled)
	waveform.Truncated = waveform.Truncated || cut
	waveform.SourceSampleRate = sampleRate
	return waveform, nil
}

func (n *Normalizer) fromDecoded(pcm []float64) *Waveform {
	target := TargetLength(n.sampleRate, n.duration)
	fixed := FixLength(pcm, target)

	return &Waveform{
		Samples:       fixed,
		SampleRate:    n.sampleRate,
		Duration:      n.duration,
		SourceSamples: len(pcm),
		Padded:        len(pcm) < target,
		Truncated:     len(pcm) > target,
		Level:         n.energy.Summarize(fixed),
	}
}

// TargetLength returns sampleRate*duration in samples
func TargetLength(sampleRate int, duration time.Duration) int {
	return int(int64(sampleRate) * int64(duration) / int64(time.Second))
}

// FixLength returns exactly length samples: the head of samples, zero-padded at the end
func FixLength(samples []float64, length int) []float64 {
	out := make([]float64, length)
	copy(out, samples)
	return out
}
