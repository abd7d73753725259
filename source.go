package tablequery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// Source is a reopenable reference to the bytes of a table. Every Open call
// returns a fresh reader positioned at the start, so a table can take
// several independent passes. The caller owns the Source; tables never
// close or clean it up.
type Source interface {
	// Name identifies the source. Its extension drives format and
	// compression detection.
	Name() string
	// Open returns a new reader over the whole content.
	Open() (io.ReadCloser, error)
}

// FileSource reads a file from the local filesystem.
type FileSource struct {
	path string
}

// NewFileSource creates a Source for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return s.path
}

// Open opens the file.
func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path) //nolint:gosec // User-provided path is necessary for file operations
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, s.path)
		}
		return nil, err
	}
	return f, nil
}

// BytesSource serves an in-memory byte slice.
type BytesSource struct {
	name string
	data []byte
}

// NewBytesSource creates a Source over data. name is used for format
// detection only.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

// Name returns the name given at construction.
func (s *BytesSource) Name() string {
	return s.name
}

// Open returns a reader over the bytes.
func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// FSSource reads a file from an fs.FS such as embed.FS.
type FSSource struct {
	fsys fs.FS
	path string
}

// NewFSSource creates a Source for path inside fsys.
func NewFSSource(fsys fs.FS, path string) *FSSource {
	return &FSSource{fsys: fsys, path: path}
}

// Name returns the path inside the filesystem.
func (s *FSSource) Name() string {
	return s.path
}

// Open opens the file inside the filesystem.
func (s *FSSource) Open() (io.ReadCloser, error) {
	f, err := s.fsys.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, s.path)
		}
		return nil, err
	}
	return f, nil
}

// ReaderSource turns a one-shot reader such as stdin into a reopenable
// Source by spooling it to a temporary file on first use.
type ReaderSource struct {
	name   string
	reader io.Reader

	once    sync.Once
	tmpPath string
	err     error
}

// NewReaderSource creates a Source that reads r once. name is used for
// format detection. Call Cleanup when done to remove the spool file.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, reader: r}
}

// Name returns the name given at construction.
func (s *ReaderSource) Name() string {
	return s.name
}

// Open spools the reader on first use and opens the spool file.
func (s *ReaderSource) Open() (io.ReadCloser, error) {
	s.once.Do(s.spool)
	if s.err != nil {
		return nil, s.err
	}
	return os.Open(s.tmpPath)
}

func (s *ReaderSource) spool() {
	pattern := "tablequery-*" + path.Ext(filepath.ToSlash(s.name))
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		s.err = fmt.Errorf("failed to create spool file: %w", err)
		return
	}
	s.tmpPath = tmp.Name()
	if _, err := io.Copy(tmp, s.reader); err != nil {
		_ = tmp.Close() // Ignore close error during error handling
		s.err = fmt.Errorf("failed to spool input: %w", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.err = fmt.Errorf("failed to close spool file: %w", err)
	}
}

// Cleanup removes the spool file.
func (s *ReaderSource) Cleanup() error {
	if s.tmpPath == "" {
		return nil
	}
	if err := os.Remove(s.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove spool file %s: %w", s.tmpPath, err)
	}
	return nil
}
