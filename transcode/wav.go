package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// WAV format tags
const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE
)

// WAVInfo describes the fmt chunk of a WAV file
type WAVInfo struct {
	FormatTag     int
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// DecodeWAV parses a RIFF/WAVE buffer into interleaved samples in [-1, 1]
func DecodeWAV(data []byte) ([]float64, WAVInfo, error) {
	samples, info, _, err := decodeWAV(data, 0)
	return samples, info, err
}

// decodeWAV decodes at most SourceLimit(limit) frames and reports whether the data
// chunk held more
func decodeWAV(data []byte, limit time.Duration) ([]float64, WAVInfo, bool, error) {
	var info WAVInfo

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, false, fmt.Errorf("not a RIFF/WAVE file: %w", ErrUnsupportedFormat)
	}

	var pcm []byte
	haveFmt, haveData := false, false

	// walk chunks; sizes are padded to even lengths
	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) || size < 0 {
			// truncated final chunk: keep what is there
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, info, false, fmt.Errorf("fmt chunk too short (%d bytes)", end-body)
			}
			chunk := data[body:end]
			info.FormatTag = int(binary.LittleEndian.Uint16(chunk[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))
			if info.FormatTag == wavFormatExtensible && len(chunk) >= 26 {
				// first two bytes of the sub-format GUID carry the real tag
				info.FormatTag = int(binary.LittleEndian.Uint16(chunk[24:26]))
			}
			haveFmt = true
		case "data":
			pcm = data[body:end]
			haveData = true
		}

		offset = end + size%2
		if haveFmt && haveData {
			break
		}
	}

	if !haveFmt {
		return nil, info, false, fmt.Errorf("missing fmt chunk")
	}
	if !haveData {
		return nil, info, false, fmt.Errorf("missing data chunk")
	}
	if info.Channels <= 0 {
		return nil, info, false, fmt.Errorf("invalid channel count: %d", info.Channels)
	}
	if info.SampleRate <= 0 {
		return nil, info, false, fmt.Errorf("invalid sample rate: %d", info.SampleRate)
	}

	truncated := false
	if frames := SourceLimit(limit, info.SampleRate); frames > 0 {
		maxBytes := frames * info.Channels * (info.BitsPerSample / 8)
		if maxBytes > 0 && len(pcm) > maxBytes {
			pcm = pcm[:maxBytes]
			truncated = true
		}
	}

	samples, err := decodePCM(pcm, info)
	if err != nil {
		return nil, info, false, err
	}
	return samples, info, truncated, nil
}

func decodePCM(pcm []byte, info WAVInfo) ([]float64, error) {
	bytesPerSample := info.BitsPerSample / 8
	if bytesPerSample <= 0 {
		return nil, fmt.Errorf("unsupported bits per sample: %d", info.BitsPerSample)
	}

	// drop a trailing partial frame
	frameBytes := bytesPerSample * info.Channels
	pcm = pcm[:len(pcm)/frameBytes*frameBytes]
	count := len(pcm) / bytesPerSample
	samples := make([]float64, count)

	switch {
	case info.FormatTag == wavFormatPCM && info.BitsPerSample == 8:
		for i := range count {
			samples[i] = (float64(pcm[i]) - 128.0) / 128.0
		}
	case info.FormatTag == wavFormatPCM && info.BitsPerSample == 16:
		for i := range count {
			samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		}
	case info.FormatTag == wavFormatPCM && info.BitsPerSample == 24:
		for i := range count {
			b := pcm[i*3:]
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			samples[i] = float64(v) / 8388608.0
		}
	case info.FormatTag == wavFormatPCM && info.BitsPerSample == 32:
		for i := range count {
			samples[i] = float64(int32(binary.LittleEndian.Uint32(pcm[i*4:]))) / 2147483648.0
		}
	case info.FormatTag == wavFormatIEEEFloat && info.BitsPerSample == 32:
		for i := range count {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:])))
		}
	case info.FormatTag == wavFormatIEEEFloat && info.BitsPerSample == 64:
		for i := range count {
			samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(pcm[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported WAV encoding (format %#x, %d bits): %w",
			info.FormatTag, info.BitsPerSample, ErrUnsupportedFormat)
	}

	return samples, nil
}

// EncodeWAV writes interleaved samples as 16-bit PCM WAV. Values are clipped to [-1, 1].
func EncodeWAV(samples []float64, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	const bitsPerSample = 16
	dataSize := len(samples) * 2
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		s = math.Max(-1.0, math.Min(1.0, s))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(math.Round(s*32767.0))))
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}
