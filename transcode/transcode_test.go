package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	resampling "github.com/tphakala/go-audio-resampling"
)

func sine(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func nativeNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(NewNativeDecoder(nil), 44100, 10*time.Second)
	require.NoError(t, err)
	return n
}

func TestEncodeDecodeWAV(t *testing.T) {
	samples := sine(440, 16000, 0.25)

	data, err := EncodeWAV(samples, 16000, 1)
	require.NoError(t, err)
	assert.Equal(t, 44+2*len(samples), len(data))
	assert.Equal(t, ContainerWAV, DetectFormat(data).Container)

	decoded, info, err := DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 1.0/32767.0)
	}
}

// buildWAV assembles a WAV by hand so encodings EncodeWAV never writes can be tested
func buildWAV(formatTag, channels, sampleRate, bits int, pcm []byte, extra ...[]byte) []byte {
	var fmtChunk []byte
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(formatTag))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(channels))
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(sampleRate))
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, uint32(sampleRate*channels*bits/8))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(channels*bits/8))
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, uint16(bits))
	for _, e := range extra {
		fmtChunk = append(fmtChunk, e...)
	}

	var body []byte
	body = append(body, "WAVE"...)
	// an unrelated chunk before fmt must be skipped
	body = append(body, "LIST"...)
	body = binary.LittleEndian.AppendUint32(body, 3)
	body = append(body, 'a', 'b', 'c', 0)
	body = append(body, "fmt "...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(fmtChunk)))
	body = append(body, fmtChunk...)
	body = append(body, "data"...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(pcm)))
	body = append(body, pcm...)

	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...)
}

func TestDecodeWAVEncodings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []float64
	}{
		{
			name: "8-bit unsigned",
			data: buildWAV(wavFormatPCM, 1, 8000, 8, []byte{128, 255, 0}),
			want: []float64{0, 127.0 / 128.0, -1},
		},
		{
			name: "24-bit",
			data: buildWAV(wavFormatPCM, 1, 8000, 24, []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0}),
			want: []float64{0.5, -0.5},
		},
		{
			name: "32-bit float",
			data: buildWAV(wavFormatIEEEFloat, 1, 8000, 32,
				binary.LittleEndian.AppendUint32(nil, math.Float32bits(0.25))),
			want: []float64{0.25},
		},
		{
			name: "extensible 16-bit",
			data: buildWAV(wavFormatExtensible, 1, 8000, 16,
				binary.LittleEndian.AppendUint16(nil, uint16(0x4000)),
				// cbSize, valid bits, channel mask, sub-format GUID
				[]byte{22, 0, 16, 0, 4, 0, 0, 0, 0x01, 0x00, 0, 0, 0, 0, 0x10, 0, 0x80, 0, 0, 0xAA, 0, 0x38, 0x9B, 0x71}),
			want: []float64{0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := DecodeWAV(tt.data)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-6)
			}
		})
	}
}

func TestDecodeWAVRejectsUnsupported(t *testing.T) {
	_, _, err := DecodeWAV([]byte("not a wav file at all"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// A-law
	_, _, err = DecodeWAV(buildWAV(6, 1, 8000, 8, []byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMixToMono(t *testing.T) {
	mono := MixToMono([]float64{1, 0, 0.5, 0.5, -1, 1}, 2)
	assert.Equal(t, []float64{0.5, 0.5, 0}, mono)

	in := []float64{1, 2, 3}
	assert.Equal(t, in, MixToMono(in, 1))
}

func TestFixLength(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 0, 0}, FixLength([]float64{1, 2}, 4))
	assert.Equal(t, []float64{1, 2}, FixLength([]float64{1, 2, 3, 4}, 2))
	assert.Equal(t, []float64{1, 2}, FixLength([]float64{1, 2}, 2))
	assert.Equal(t, 441000, TargetLength(44100, 10*time.Second))
}

func TestNormalizerLength(t *testing.T) {
	n := nativeNormalizer(t)
	target := TargetLength(44100, 10*time.Second)

	tests := []struct {
		name      string
		seconds   float64
		padded    bool
		truncated bool
	}{
		{"short clip is padded", 3, true, false},
		{"long clip is truncated", 12, false, true},
		{"exact clip is unchanged", 10, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := sine(440, 44100, tt.seconds)
			data, err := EncodeWAV(samples, 44100, 1)
			require.NoError(t, err)

			waveform, err := n.Normalize(context.Background(), data)
			require.NoError(t, err)
			assert.Len(t, waveform.Samples, target)
			assert.Equal(t, tt.padded, waveform.Padded)
			assert.Equal(t, tt.truncated, waveform.Truncated)
			if tt.truncated {
				// only the first ten seconds plus the filter margin are decoded
				assert.Equal(t, SourceLimit(10*time.Second, 44100), waveform.SourceSamples)
			} else {
				assert.Equal(t, len(samples), waveform.SourceSamples)
			}
			assert.Equal(t, ContainerWAV, waveform.Format)
			assert.Equal(t, "audio/wav", waveform.ContentType)
			assert.False(t, waveform.Level.Silent)

			if tt.padded {
				assert.Zero(t, waveform.Samples[target-1])
			}
		})
	}
}

func TestNormalizerResamplesStereo(t *testing.T) {
	n := nativeNormalizer(t)

	left := sine(440, 22050, 2)
	interleaved := make([]float64, 2*len(left))
	for i, v := range left {
		interleaved[2*i] = v
		interleaved[2*i+1] = v
	}
	data, err := EncodeWAV(interleaved, 22050, 2)
	require.NoError(t, err)

	waveform, err := n.Normalize(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, waveform.Samples, 441000)
	assert.Equal(t, 22050, waveform.SourceSampleRate)
	assert.True(t, waveform.Padded)
	assert.InDelta(t, 2*44100, waveform.SourceSamples, 441)
}

func TestResampleKeepsTail(t *testing.T) {
	for _, rate := range []int{8000, 16000, 22050, 48000} {
		out, err := Resample(sine(440, rate, 1), rate, 44100, "high")
		require.NoError(t, err)
		// the flushed filter tail must be there: within 0.5 % of one second
		assert.InDelta(t, 44100, len(out), 221, "rate %d", rate)

		for _, quality := range []string{"fast", "medium"} {
			out, err := Resample(sine(440, rate, 1), rate, 44100, quality)
			require.NoError(t, err)
			assert.InDelta(t, 44100, len(out), 441, "rate %d quality %s", rate, quality)
		}
	}

	same := sine(440, 44100, 0.5)
	out, err := Resample(same, 44100, 44100, "high")
	require.NoError(t, err)
	assert.Equal(t, same, out)

	_, err = Resample(same, 0, 44100, "high")
	assert.Error(t, err)
}

func TestNormalizerKeepsEndOfResampledClip(t *testing.T) {
	n := nativeNormalizer(t)
	data, err := EncodeWAV(sine(440, 48000, 3), 48000, 1)
	require.NoError(t, err)

	waveform, err := n.Normalize(context.Background(), data)
	require.NoError(t, err)
	assert.InDelta(t, 3*44100, waveform.SourceSamples, 221)

	// the last 50 ms of a three second tone are still signal, not padding
	tail := waveform.Samples[3*44100-2205 : 3*44100-300]
	peak := 0.0
	for _, v := range tail {
		peak = math.Max(peak, math.Abs(v))
	}
	assert.Greater(t, peak, 0.4)
}

func TestQualityPreset(t *testing.T) {
	assert.Equal(t, resampling.QualityLow, qualityPreset("fast"))
	assert.Equal(t, resampling.QualityMedium, qualityPreset("medium"))
	assert.Equal(t, resampling.QualityHigh, qualityPreset("high"))
	assert.Equal(t, resampling.QualityHigh, qualityPreset(""))
}

func TestNormalizerLimitsLongLowRateInput(t *testing.T) {
	n := nativeNormalizer(t)

	// 1000 s at 1 kHz; only the first ten seconds may reach the resampler
	long := sine(50, 1000, 1000)
	data, err := EncodeWAV(long, 1000, 1)
	require.NoError(t, err)

	waveform, err := n.Normalize(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, waveform.Truncated)
	assert.False(t, waveform.Padded)
	assert.Len(t, waveform.Samples, 441000)
	assert.Equal(t, 1000, waveform.SourceSampleRate)
	// SourceLimit(10s, 1 kHz) = 10020 source samples, about 441900 at 44.1 kHz
	assert.Less(t, waveform.SourceSamples, 443000)

	fromSamples, err := n.FromSamples(long, 1000)
	require.NoError(t, err)
	assert.True(t, fromSamples.Truncated)
	assert.Less(t, fromSamples.SourceSamples, 443000)
	assert.InDelta(t, waveform.Samples[220500], fromSamples.Samples[220500], 1e-3)
}

func TestSourceLimit(t *testing.T) {
	assert.Equal(t, 0, SourceLimit(0, 44100))
	assert.Equal(t, 441000+882, SourceLimit(10*time.Second, 44100))
	assert.Equal(t, 10020, SourceLimit(10*time.Second, 1000))

	cut, truncated := limitSource(make([]float64, 20000), 10*time.Second, 1000)
	assert.True(t, truncated)
	assert.Len(t, cut, 10020)

	kept, truncated := limitSource(make([]float64, 500), 10*time.Second, 1000)
	assert.False(t, truncated)
	assert.Len(t, kept, 500)
}

func TestDecodeWAVLimit(t *testing.T) {
	data, err := EncodeWAV(make([]float64, 2*8000*3), 8000, 2)
	require.NoError(t, err)

	samples, info, truncated, err := decodeWAV(data, time.Second)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, samples, 2*SourceLimit(time.Second, 8000))
	assert.Equal(t, 8000, info.SampleRate)

	samples, _, truncated, err = decodeWAV(data, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, samples, 2*8000*3)
}

func TestNormalizerErrors(t *testing.T) {
	n := nativeNormalizer(t)

	_, err := n.Normalize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = n.Normalize(context.Background(), []byte("definitely not audio"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestNormalizerFromSamples(t *testing.T) {
	n := nativeNormalizer(t)

	waveform, err := n.FromSamples(sine(440, 44100, 1), 44100)
	require.NoError(t, err)
	assert.Len(t, waveform.Samples, 441000)
	assert.Equal(t, 44100, waveform.SourceSamples)

	_, err = n.FromSamples(nil, 44100)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSilentWaveformLevel(t *testing.T) {
	n := nativeNormalizer(t)
	data, err := EncodeWAV(make([]float64, 44100), 44100, 1)
	require.NoError(t, err)

	waveform, err := n.Normalize(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, waveform.Level.Silent)
	assert.Equal(t, 1.0, waveform.Level.SilentRatio)
}

func TestNewDecoderBackends(t *testing.T) {
	for backend, name := range map[string]string{
		BackendAuto:   "auto",
		BackendNative: "native",
		BackendFFmpeg: "ffmpeg",
	} {
		cfg := DefaultDecoderConfig()
		cfg.Backend = backend
		decoder, err := NewDecoder(cfg)
		require.NoError(t, err)
		assert.Equal(t, name, decoder.Name())
	}

	cfg := DefaultDecoderConfig()
	cfg.Backend = "gstreamer"
	_, err := NewDecoder(cfg)
	assert.Error(t, err)
}

func TestParseFFprobeOutput(t *testing.T) {
	meta, err := parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"opus",
		"sample_rate":"48000","channels":2,"duration":"3.5","bit_rate":"64000","codec_long_name":"Opus"}]}`))
	require.NoError(t, err)
	assert.Equal(t, &AudioMetadata{
		SampleRate: 48000, Channels: 2, Codec: "opus", Duration: 3.5, Bitrate: 64000, Format: "Opus",
	}, meta)

	_, err = parseFFprobeOutput([]byte(`{"streams":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewFFmpegDecoder(nil)

	args := d.buildFFmpegArgs(&AudioMetadata{SampleRate: 48000, Channels: 2}, 10*time.Second)
	assert.Contains(t, args, "aresample=resampler=soxr:precision=28")
	assert.Subset(t, args, []string{"-ac", "1", "-ar", "44100", "-f", "f64le"})
	assert.Subset(t, args, []string{"-t", "10"})

	args = d.buildFFmpegArgs(&AudioMetadata{SampleRate: 44100, Channels: 1}, 0)
	assert.NotContains(t, args, "-af")
	assert.NotContains(t, args, "-t")
}

func TestBytesToFloat64(t *testing.T) {
	var raw []byte
	raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(0.5))
	raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(-0.25))
	raw = append(raw, 0x01, 0x02) // partial sample is dropped

	assert.Equal(t, []float64{0.5, -0.25}, bytesToFloat64(raw))
}

func TestContentTypeForContainer(t *testing.T) {
	assert.Equal(t, "audio/wav", ContentTypeForContainer(ContainerWAV))
	assert.Equal(t, "audio/mpeg", ContentTypeForContainer(ContainerMP3))
	assert.Equal(t, "audio/ogg", ContentTypeForContainer("vorbis"))
	assert.Equal(t, "audio/unknown", ContentTypeForContainer("amr_nb"))
}
