package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/RyanBlaney/sonido-cough/logging"
)

// NativeDecoder decodes WAV and MP3 without external processes
type NativeDecoder struct {
	config *DecoderConfig
}

// NewNativeDecoder creates an in-process decoder
func NewNativeDecoder(config *DecoderConfig) *NativeDecoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &NativeDecoder{config: config}
}

// Name returns "native"
func (d *NativeDecoder) Name() string { return BackendNative }

// Config returns the decoder configuration
func (d *NativeDecoder) Config() *DecoderConfig { return d.config }

// Decode sniffs the container, decodes at most limit of it, mixes to mono and
// resamples to the target rate
func (d *NativeDecoder) Decode(ctx context.Context, data []byte, limit time.Duration) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "NativeDecoder.Decode",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	format := DetectFormat(data)

	var (
		interleaved []float64
		sampleRate  int
		channels    int
		truncated   bool
		err         error
	)

	switch format.Container {
	case ContainerWAV:
		var info WAVInfo
		interleaved, info, truncated, err = decodeWAV(data, limit)
		sampleRate, channels = info.SampleRate, info.Channels
	case ContainerMP3:
		interleaved, sampleRate, truncated, err = decodeMP3(data, limit)
		channels = 2
	default:
		return nil, fmt.Errorf("%s: %w", format.MIME, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format.Container, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mono := MixToMono(interleaved, channels)
	if len(mono) == 0 {
		return nil, fmt.Errorf("no audio samples decoded from %s", format.Container)
	}

	mono, cut := limitSource(mono, limit, sampleRate)
	truncated = truncated || cut

	resampled, err := Resample(mono, sampleRate, d.config.TargetSampleRate, d.config.ResampleQuality)
	if err != nil {
		return nil, err
	}

	logger.Debug("Native decode completed", logging.Fields{
		"format":             format.Container,
		"input_sample_rate":  sampleRate,
		"input_channels":     channels,
		"output_samples":     len(resampled),
		"output_sample_rate": d.config.TargetSampleRate,
		"truncated":          truncated,
	})

	return &AudioData{
		PCM:              resampled,
		SampleRate:       d.config.TargetSampleRate,
		Channels:         1,
		Duration:         samplesDuration(len(resampled), d.config.TargetSampleRate),
		SourceSampleRate: sampleRate,
		SourceChannels:   channels,
		Format:           format.Container,
		Backend:          BackendNative,
		Truncated:        truncated,
	}, nil
}

// decodeMP3 returns interleaved stereo samples, at most SourceLimit(limit) frames of
// them; go-mp3 always emits 16-bit LE stereo
func decodeMP3(data []byte, limit time.Duration) ([]float64, int, bool, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, false, err
	}

	const frameBytes = 4
	var src io.Reader = decoder
	maxBytes := int64(SourceLimit(limit, decoder.SampleRate())) * frameBytes
	if maxBytes > 0 {
		// one extra frame tells whether the stream went on
		src = io.LimitReader(decoder, maxBytes+frameBytes)
	}

	pcm, err := io.ReadAll(src)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, 0, false, err
	}

	truncated := false
	if maxBytes > 0 && int64(len(pcm)) > maxBytes {
		pcm = pcm[:maxBytes]
		truncated = true
	}

	count := len(pcm) / 2
	samples := make([]float64, count)
	for i := range count {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}

	return samples, decoder.SampleRate(), truncated, nil
}
