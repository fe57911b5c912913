package transcode

import (
	"github.com/gabriel-vasile/mimetype"
)

// Container names understood by the native decoder
const (
	ContainerWAV     = "wav"
	ContainerMP3     = "mp3"
	ContainerUnknown = "unknown"
)

// Format is the result of content sniffing
type Format struct {
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
	Container string `json:"container"`
}

// DetectFormat sniffs the container from the leading bytes
func DetectFormat(data []byte) Format {
	mime := mimetype.Detect(data)

	format := Format{
		MIME:      mime.String(),
		Extension: mime.Extension(),
		Container: ContainerUnknown,
	}

	switch {
	case mime.Is("audio/wav"):
		format.Container = ContainerWAV
	case mime.Is("audio/mpeg"):
		format.Container = ContainerMP3
	}

	return format
}

// ContentTypeForContainer maps a container or codec name to a MIME type
func ContentTypeForContainer(name string) string {
	switch name {
	case "wav", "pcm_s16le", "pcm_s24le", "pcm_f32le":
		return "audio/wav"
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg", "vorbis":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	default:
		return "audio/unknown"
	}
}
