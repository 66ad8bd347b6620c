// Package blob implements the write-once attachment store backing uploads.
package blob

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrBadName rejects blob names that are empty or try to escape the
// upload directory.
var ErrBadName = errors.New("invalid blob name")

// Store writes attachment payloads to a flat directory. Names are generated
// with NewName and returned to the router unchanged as the stored reference.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory served for attachment downloads.
func (s *Store) Dir() string {
	return s.dir
}

// NewName builds a collision-resistant file name from a nanosecond timestamp
// and the upload's extension. When the original name carries no extension,
// one is sniffed from the payload.
func (s *Store) NewName(original string, data []byte) string {
	ext := filepath.Ext(original)
	if ext == "" {
		ext = mimetype.Detect(data).Extension()
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10) + ext
}

// WriteBlob stores the payload under name. Blobs are immutable once written.
func (s *Store) WriteBlob(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) {
		return ErrBadName
	}
	return os.WriteFile(filepath.Join(s.dir, name), data, 0o644)
}
