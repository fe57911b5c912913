package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidArtifact marks scaler or forest parameters that cannot be used
var ErrInvalidArtifact = errors.New("invalid model artifact")

// Artifact encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// EncodingForPath picks the artifact encoding from the file extension
func EncodingForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return EncodingJSON, nil
	case ".msgpack", ".mp", ".mpk":
		return EncodingMsgpack, nil
	default:
		return "", fmt.Errorf("%s: unknown artifact extension: %w", path, ErrInvalidArtifact)
	}
}

// decodeFile reads path into out using the encoding implied by its extension
func decodeFile(path string, out any) error {
	encoding, err := EncodingForPath(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch encoding {
	case EncodingMsgpack:
		err = msgpack.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %v: %w", path, err, ErrInvalidArtifact)
	}
	return nil
}

// encodeFile writes v to path using the encoding implied by its extension
func encodeFile(path string, v any) error {
	encoding, err := EncodingForPath(path)
	if err != nil {
		return err
	}

	var data []byte
	switch encoding {
	case EncodingMsgpack:
		data, err = msgpack.Marshal(v)
	default:
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	return os.WriteFile(path, data, 0o644)
}
