package tablequery

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nao1215/tablequery/domain/model"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// FileType represents a supported tabular file type
type FileType int

const (
	// FileTypeCSV represents CSV file type
	FileTypeCSV FileType = iota
	// FileTypeTSV represents TSV file type
	FileTypeTSV
	// FileTypeLTSV represents LTSV file type
	FileTypeLTSV
	// FileTypeParquet represents Parquet file type
	FileTypeParquet
	// FileTypeXLSX represents Excel XLSX file type
	FileTypeXLSX
	// FileTypeUnsupported represents unsupported file type
	FileTypeUnsupported
)

// File extensions
const (
	extCSV     = ".csv"
	extTSV     = ".tsv"
	extLTSV    = ".ltsv"
	extParquet = ".parquet"
	extXLSX    = ".xlsx"
)

// Default delimiters
const (
	csvDelimiter = ','
	tsvDelimiter = '\t'
	defaultQuote = '"'
)

// String returns the file type name
func (ft FileType) String() string {
	switch ft {
	case FileTypeCSV:
		return "csv"
	case FileTypeTSV:
		return "tsv"
	case FileTypeLTSV:
		return "ltsv"
	case FileTypeParquet:
		return "parquet"
	case FileTypeXLSX:
		return "xlsx"
	default:
		return "unsupported"
	}
}

// ParseFileType parses a file type name such as "csv" or ".tsv".
func ParseFileType(name string) (FileType, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv":
		return FileTypeCSV, nil
	case "tsv", "tab":
		return FileTypeTSV, nil
	case "ltsv":
		return FileTypeLTSV, nil
	case "parquet":
		return FileTypeParquet, nil
	case "xlsx":
		return FileTypeXLSX, nil
	default:
		return FileTypeUnsupported, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// DetectFileType detects the file type from a file name, ignoring any
// compression extension. Unknown extensions are treated as CSV.
func DetectFileType(name string) FileType {
	ext := strings.ToLower(filepath.Ext(removeCompressionExtension(name)))
	switch ext {
	case extTSV:
		return FileTypeTSV
	case extLTSV:
		return FileTypeLTSV
	case extParquet:
		return FileTypeParquet
	case extXLSX:
		return FileTypeXLSX
	default:
		return FileTypeCSV
	}
}

// HeaderMode tells whether the first row holds column names.
type HeaderMode int

const (
	// HeaderUnknown leaves the decision to header inference
	HeaderUnknown HeaderMode = iota
	// HeaderPresent means the first row holds column names
	HeaderPresent
	// HeaderAbsent means every row is data
	HeaderAbsent
)

// String returns the header mode name
func (h HeaderMode) String() string {
	switch h {
	case HeaderPresent:
		return "present"
	case HeaderAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Format is the resolved configuration used to open row cursors over a
// Source. It is a value type: the With methods return modified copies.
// The zero value reads CSV with an undecided header.
type Format struct {
	// Type is the tabular file type
	Type FileType
	// Compression is the source compression. CompressionNone falls back to
	// detection from the source name.
	Compression CompressionType
	// Delimiter separates fields; zero means ',' for CSV and tab for TSV
	Delimiter rune
	// QuoteChar encloses fields; zero means '"'
	QuoteChar rune
	// EscapeChar escapes the next character; zero means none
	EscapeChar rune
	// Encoding is a WHATWG encoding label; empty means UTF-8 with BOM detection
	Encoding string
	// Header tells whether the first row holds column names
	Header HeaderMode
	// Sheet selects the XLSX sheet; empty means the first sheet
	Sheet string
}

// NewFormat creates a Format for the given file type with default options.
func NewFormat(ft FileType) Format {
	return Format{Type: ft}
}

// DetectFormat creates a Format from a file name's extensions.
func DetectFormat(name string) Format {
	return Format{
		Type:        DetectFileType(name),
		Compression: DetectCompressionType(name),
	}
}

// WithHeader returns a copy with the header mode set.
func (f Format) WithHeader(mode HeaderMode) Format {
	f.Header = mode
	return f
}

// WithDelimiter returns a copy with the field delimiter set.
func (f Format) WithDelimiter(delimiter rune) Format {
	f.Delimiter = delimiter
	return f
}

// WithQuoteChar returns a copy with the quote character set.
func (f Format) WithQuoteChar(quote rune) Format {
	f.QuoteChar = quote
	return f
}

// WithEscapeChar returns a copy with the escape character set.
func (f Format) WithEscapeChar(escape rune) Format {
	f.EscapeChar = escape
	return f
}

// WithEncoding returns a copy with the character encoding set.
func (f Format) WithEncoding(encoding string) Format {
	f.Encoding = encoding
	return f
}

// WithCompression returns a copy with the compression set.
func (f Format) WithCompression(compression CompressionType) Format {
	f.Compression = compression
	return f
}

// WithSheet returns a copy reading the named XLSX sheet.
func (f Format) WithSheet(sheet string) Format {
	f.Sheet = sheet
	return f
}

// WithOptions returns a copy with every option set in opts applied.
func (f Format) WithOptions(opts FormatOptions) Format {
	if opts.Encoding != "" {
		f.Encoding = opts.Encoding
	}
	if opts.Header != HeaderUnknown {
		f.Header = opts.Header
	}
	if opts.Delimiter != 0 {
		f.Delimiter = opts.Delimiter
	}
	if opts.QuoteChar != 0 {
		f.QuoteChar = opts.QuoteChar
	}
	if opts.EscapeChar != 0 {
		f.EscapeChar = opts.EscapeChar
	}
	return f
}

// SupportsStreaming reports whether cursors of this format read the source
// with constant memory. LTSV, XLSX and Parquet need the whole input.
func (f Format) SupportsStreaming() bool {
	switch f.Type {
	case FileTypeCSV, FileTypeTSV:
		return true
	default:
		return false
	}
}

// HasColumnNamesInFirstRow returns the header setting and whether it is known.
func (f Format) HasColumnNamesInFirstRow() (present bool, known bool) {
	switch f.Header {
	case HeaderPresent:
		return true, true
	case HeaderAbsent:
		return false, true
	default:
		return false, false
	}
}

func (f Format) delimiter() rune {
	if f.Delimiter != 0 {
		return f.Delimiter
	}
	if f.Type == FileTypeTSV {
		return tsvDelimiter
	}
	return csvDelimiter
}

func (f Format) quoteChar() rune {
	if f.QuoteChar != 0 {
		return f.QuoteChar
	}
	return defaultQuote
}

// OpenCursor opens a new pass over src. The returned cursor owns the
// underlying reader and releases it on Close.
func (f Format) OpenCursor(src Source) (model.RowCursor, error) {
	reader, closer, err := f.openReader(src)
	if err != nil {
		return nil, sourceError("open", src.Name(), err)
	}

	header, _ := f.HasColumnNamesInFirstRow()
	var cursor model.RowCursor
	switch f.Type {
	case FileTypeCSV, FileTypeTSV:
		cursor, err = newRecordCursor(f.newDelimitedReader(reader), closer, header, true)
	case FileTypeLTSV:
		cursor, err = newLTSVCursor(reader, closer)
	case FileTypeXLSX:
		cursor, err = newXLSXCursor(reader, closer, f.Sheet, header)
	case FileTypeParquet:
		cursor, err = newParquetCursor(reader, closer)
	default:
		_ = closer() // Ignore close error during error handling
		return nil, NewErrorContext("open", src.Name()).Error(ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, sourceError("open", src.Name(), err)
	}
	return cursor, nil
}

// openReader opens src and stacks decompression and character decoding
// on top of it.
func (f Format) openReader(src Source) (io.Reader, func() error, error) {
	file, err := src.Open()
	if err != nil {
		return nil, nil, err
	}

	compression := f.Compression
	if compression == CompressionNone {
		compression = DetectCompressionType(src.Name())
	}
	decompressed, cleanup, err := NewCompressionHandler(compression).CreateReader(file)
	if err != nil {
		_ = file.Close() // Ignore close error during error handling
		return nil, nil, err
	}

	closer := func() error {
		cleanupErr := cleanup()
		if closeErr := file.Close(); closeErr != nil && cleanupErr == nil {
			cleanupErr = closeErr
		}
		return cleanupErr
	}

	// Binary formats are not text and must not be transcoded
	if f.Type == FileTypeParquet || f.Type == FileTypeXLSX {
		return decompressed, closer, nil
	}

	decoded, err := decodeReader(decompressed, f.Encoding)
	if err != nil {
		_ = closer() // Ignore close error during error handling
		return nil, nil, err
	}
	return decoded, closer, nil
}

// decodeReader converts r from the named encoding to UTF-8. An empty name
// means UTF-8, honouring a byte order mark when present.
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
