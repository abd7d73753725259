package tablequery

import (
	"compress/bzip2"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CompressionType is the compression of a source or of written results.
type CompressionType int

const (
	// CompressionNone means the bytes are used as they are
	CompressionNone CompressionType = iota
	// CompressionGZ is gzip
	CompressionGZ
	// CompressionBZ2 is bzip2, which can only be read
	CompressionBZ2
	// CompressionXZ is xz
	CompressionXZ
	// CompressionZSTD is Zstandard
	CompressionZSTD
)

func nopClose() error { return nil }

// codec describes one compression type.
type codec struct {
	name      string
	extension string
	aliases   []string
	reader    func(io.Reader) (io.Reader, func() error, error)
	writer    func(io.Writer) (io.Writer, func() error, error) // nil when writing is unsupported
}

var codecs = map[CompressionType]codec{
	CompressionNone: {
		name:    "none",
		aliases: []string{""},
		reader: func(r io.Reader) (io.Reader, func() error, error) {
			return r, nopClose, nil
		},
		writer: func(w io.Writer) (io.Writer, func() error, error) {
			return w, nopClose, nil
		},
	},
	CompressionGZ: {
		name:      "gz",
		extension: ".gz",
		aliases:   []string{"gzip"},
		reader: func(r io.Reader) (io.Reader, func() error, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, zr.Close, nil
		},
		writer: func(w io.Writer) (io.Writer, func() error, error) {
			zw := gzip.NewWriter(w)
			return zw, zw.Close, nil
		},
	},
	CompressionBZ2: {
		name:      "bz2",
		extension: ".bz2",
		aliases:   []string{"bzip2"},
		reader: func(r io.Reader) (io.Reader, func() error, error) {
			return bzip2.NewReader(r), nopClose, nil
		},
	},
	CompressionXZ: {
		name:      "xz",
		extension: ".xz",
		reader: func(r io.Reader) (io.Reader, func() error, error) {
			zr, err := xz.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, nopClose, nil
		},
		writer: func(w io.Writer) (io.Writer, func() error, error) {
			zw, err := xz.NewWriter(w)
			if err != nil {
				return nil, nil, err
			}
			return zw, zw.Close, nil
		},
	},
	CompressionZSTD: {
		name:      "zstd",
		extension: ".zst",
		aliases:   []string{"zst"},
		reader: func(r io.Reader) (io.Reader, func() error, error) {
			decoder, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return decoder, func() error {
				decoder.Close()
				return nil
			}, nil
		},
		writer: func(w io.Writer) (io.Writer, func() error, error) {
			encoder, err := zstd.NewWriter(w)
			if err != nil {
				return nil, nil, err
			}
			return encoder, encoder.Close, nil
		},
	},
}

// compressedTypes lists the types detected from file names, in match order.
var compressedTypes = []CompressionType{CompressionGZ, CompressionBZ2, CompressionXZ, CompressionZSTD}

// String returns the short name of c.
func (c CompressionType) String() string {
	if cd, ok := codecs[c]; ok {
		return cd.name
	}
	return "none"
}

// Extension returns the file extension of c, empty for CompressionNone.
func (c CompressionType) Extension() string {
	return codecs[c].extension
}

// ParseCompressionType parses a compression name such as "gz", "gzip",
// "xz", "zst" or "none". A leading dot is ignored.
func ParseCompressionType(name string) (CompressionType, error) {
	key := strings.ToLower(strings.TrimPrefix(name, "."))
	for ct, cd := range codecs {
		if key == cd.name {
			return ct, nil
		}
		for _, alias := range cd.aliases {
			if key == alias {
				return ct, nil
			}
		}
	}
	return CompressionNone, fmt.Errorf("%w: unknown compression type %q", ErrUsage, name)
}

// CompressionHandler wraps readers and writers with a compression codec.
type CompressionHandler interface {
	// CreateReader wraps reader with a decompressing reader. The returned
	// function releases the decompressor, not reader.
	CreateReader(reader io.Reader) (io.Reader, func() error, error)
	// CreateWriter wraps writer with a compressing writer. The returned
	// function flushes the compressed stream, not writer.
	CreateWriter(writer io.Writer) (io.Writer, func() error, error)
	// Extension returns the file extension, such as ".gz"
	Extension() string
}

type compressionHandler struct {
	compressionType CompressionType
}

// NewCompressionHandler returns the handler for compressionType.
func NewCompressionHandler(compressionType CompressionType) CompressionHandler {
	return &compressionHandler{compressionType: compressionType}
}

func (h *compressionHandler) CreateReader(reader io.Reader) (io.Reader, func() error, error) {
	cd, ok := codecs[h.compressionType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unsupported compression type %d", ErrUsage, h.compressionType)
	}
	r, closer, err := cd.reader(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s reader: %w", cd.name, err)
	}
	return r, closer, nil
}

func (h *compressionHandler) CreateWriter(writer io.Writer) (io.Writer, func() error, error) {
	cd, ok := codecs[h.compressionType]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unsupported compression type %d", ErrUsage, h.compressionType)
	}
	if cd.writer == nil {
		return nil, nil, fmt.Errorf("%w: %s output is not supported", ErrUsage, cd.name)
	}
	w, closer, err := cd.writer(writer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s writer: %w", cd.name, err)
	}
	return w, closer, nil
}

func (h *compressionHandler) Extension() string {
	return h.compressionType.Extension()
}

// DetectCompressionType detects the compression from the extension of a
// file name, ignoring case.
func DetectCompressionType(name string) CompressionType {
	lower := strings.ToLower(name)
	for _, ct := range compressedTypes {
		if strings.HasSuffix(lower, codecs[ct].extension) {
			return ct
		}
	}
	return CompressionNone
}

// removeCompressionExtension strips a compression extension from name.
func removeCompressionExtension(name string) string {
	if ct := DetectCompressionType(name); ct != CompressionNone {
		return name[:len(name)-len(codecs[ct].extension)]
	}
	return name
}
