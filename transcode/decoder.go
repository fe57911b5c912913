package transcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-cough/logging"
)

var (
	// ErrEmptyInput is returned when there are no bytes to decode
	ErrEmptyInput = errors.New("empty audio data")
	// ErrUnsupportedFormat is returned when a backend does not recognise the container
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// AudioData represents decoded mono audio
type AudioData struct {
	PCM              []float64     `json:"-"`
	SampleRate       int           `json:"sample_rate"`
	Channels         int           `json:"channels"`
	Duration         time.Duration `json:"duration"`
	SourceSampleRate int           `json:"source_sample_rate"`
	SourceChannels   int           `json:"source_channels"`
	Format           string        `json:"format"`    // container, e.g. "wav", "mp3"
	Backend          string        `json:"backend"`   // decoder that produced the samples
	Truncated        bool          `json:"truncated"` // source was longer than the decode limit
}

// Decoder turns encoded audio into mono PCM at the configured rate. A positive limit
// bounds the decoded duration: source audio past it is neither decoded in full nor
// resampled.
type Decoder interface {
	Decode(ctx context.Context, data []byte, limit time.Duration) (*AudioData, error)
	Name() string
	Config() *DecoderConfig
}

// Backend names
const (
	BackendAuto   = "auto"
	BackendNative = "native"
	BackendFFmpeg = "ffmpeg"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	Backend          string        `json:"backend" mapstructure:"decoder"`
	TargetSampleRate int           `json:"target_sample_rate" mapstructure:"sample_rate"`
	ResampleQuality  string        `json:"resample_quality" mapstructure:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path" mapstructure:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"` // per ffmpeg invocation
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		Backend:          BackendAuto,
		TargetSampleRate: 44100,
		ResampleQuality:  "high",
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          30 * time.Second,
	}
}

// Validate checks the configuration without touching the filesystem
func (c *DecoderConfig) Validate() error {
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", c.TargetSampleRate)
	}
	switch c.Backend {
	case BackendAuto, BackendNative, BackendFFmpeg:
	default:
		return fmt.Errorf("unknown decoder backend %q", c.Backend)
	}
	switch c.ResampleQuality {
	case "", "fast", "medium", "high":
	default:
		return fmt.Errorf("unknown resample quality %q", c.ResampleQuality)
	}
	return nil
}

// NewDecoder builds the decoder selected by config.Backend
func NewDecoder(config *DecoderConfig) (Decoder, error) {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Backend {
	case BackendNative:
		return NewNativeDecoder(config), nil
	case BackendFFmpeg:
		return NewFFmpegDecoder(config), nil
	default:
		return NewAutoDecoder(config), nil
	}
}

// AutoDecoder decodes WAV and MP3 in process and hands every other format to ffmpeg
type AutoDecoder struct {
	native *NativeDecoder
	ffmpeg *FFmpegDecoder
}

// NewAutoDecoder creates a decoder that prefers the native backend
func NewAutoDecoder(config *DecoderConfig) *AutoDecoder {
	return &AutoDecoder{
		native: NewNativeDecoder(config),
		ffmpeg: NewFFmpegDecoder(config),
	}
}

// Name returns "auto"
func (d *AutoDecoder) Name() string { return BackendAuto }

// Config returns the shared decoder configuration
func (d *AutoDecoder) Config() *DecoderConfig { return d.native.config }

// FFmpeg returns the fallback decoder
func (d *AutoDecoder) FFmpeg() *FFmpegDecoder { return d.ffmpeg }

// Decode tries the native backend first and falls back to ffmpeg for formats it does
// not recognise
func (d *AutoDecoder) Decode(ctx context.Context, data []byte, limit time.Duration) (*AudioData, error) {
	audio, err := d.native.Decode(ctx, data, limit)
	if err == nil || !errors.Is(err, ErrUnsupportedFormat) {
		return audio, err
	}

	logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "AutoDecoder.Decode",
		"mime":      DetectFormat(data).MIME,
	}).Debug("Format not handled natively, falling back to ffmpeg")

	return d.ffmpeg.Decode(ctx, data, limit)
}

// MixToMono averages interleaved channels into a single channel
func MixToMono(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

func samplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
