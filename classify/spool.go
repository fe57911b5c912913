package classify

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Spool stores uploads on disk for the duration of one request
type Spool struct {
	dir string
}

// NewSpool creates dir if needed
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool directory
func (s *Spool) Dir() string { return s.dir }

// Write copies r into a new file named <uuid><ext>, where ext comes from filename.
// The caller owns the returned path and must Remove it.
func (s *Spool) Write(r io.Reader, filename string) (string, int64, error) {
	path := filepath.Join(s.dir, uuid.NewString()+safeExt(filename))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create spool file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("failed to write spool file: %w", err)
	}
	return path, n, nil
}

// Remove deletes a spooled file; a missing file is not an error
func (s *Spool) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// safeExt keeps short alphanumeric extensions only
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
