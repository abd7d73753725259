package tablequery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/nao1215/tablequery/domain/model"
	"github.com/nao1215/tablequery/parser"
)

// Builder collects queries, an input and format settings, and creates an
// Execution from them.
//
// The typical usage pattern is:
//
//	builder := tablequery.NewBuilder().
//		AddQueryFile("mapping.sparql").
//		SetPath("people.csv")
//	validatedBuilder, err := builder.Build(ctx)
//	if err != nil {
//		return err
//	}
//	defer validatedBuilder.Cleanup() // Remove spool files of reader inputs
//
//	exec, err := validatedBuilder.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer exec.Close()
//
// When no input is set, the first FROM clause of the first query names it.
type Builder struct {
	// queryTexts holds queries given as text
	queryTexts []string
	// queryFiles holds paths of query files
	queryFiles []string

	// input holds the explicitly set input, nil means FROM
	input *builderInput

	// defaults are applied before options found in the input location
	defaults FormatOptions
	// overrides are applied last
	overrides FormatOptions
	fileType  *FileType
	compress  *CompressionType
	sheet     string

	opts []Option

	// Set by Build
	queries []*model.Query
	source  Source
	format  Format
	spools  []*ReaderSource
}

// builderInput is one of a path, a reader or a file in an fs.FS.
type builderInput struct {
	path   string
	name   string
	reader io.Reader
	fsys   fs.FS
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddQuery adds query text. The text may hold several queries.
func (b *Builder) AddQuery(text string) *Builder {
	b.queryTexts = append(b.queryTexts, text)
	return b
}

// AddQueryFile adds the queries stored in a file.
func (b *Builder) AddQueryFile(path string) *Builder {
	b.queryFiles = append(b.queryFiles, path)
	return b
}

// SetPath reads the table from a file path or file URL. Format options may
// follow in the fragment, for example "data.csv#delimiter=semicolon".
func (b *Builder) SetPath(path string) *Builder {
	b.input = &builderInput{path: path}
	return b
}

// SetReader reads the table from r. name is used for format detection.
// The reader is spooled to a temporary file that Cleanup removes.
func (b *Builder) SetReader(name string, r io.Reader) *Builder {
	b.input = &builderInput{name: name, reader: r}
	return b
}

// SetFS reads the table from the named file of fsys, which is useful with
// go:embed.
func (b *Builder) SetFS(fsys fs.FS, name string) *Builder {
	b.input = &builderInput{name: name, fsys: fsys}
	return b
}

// WithDefaultFormatOptions sets options that the input location and
// WithFormatOptions may override, such as those of a config file.
func (b *Builder) WithDefaultFormatOptions(opts FormatOptions) *Builder {
	b.defaults = mergeFormatOptions(b.defaults, opts)
	return b
}

// WithFormatOptions sets options that take precedence over every other
// source of format settings.
func (b *Builder) WithFormatOptions(opts FormatOptions) *Builder {
	b.overrides = mergeFormatOptions(b.overrides, opts)
	return b
}

// WithFileType reads the input as ft regardless of its name.
func (b *Builder) WithFileType(ft FileType) *Builder {
	b.fileType = &ft
	return b
}

// WithCompression reads the input with the given compression regardless
// of its name.
func (b *Builder) WithCompression(c CompressionType) *Builder {
	b.compress = &c
	return b
}

// WithSheet selects the XLSX sheet to read.
func (b *Builder) WithSheet(sheet string) *Builder {
	b.sheet = sheet
	return b
}

// WithOptions adds options passed to the execution and its table.
func (b *Builder) WithOptions(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build parses the queries, resolves the input and the format, and
// validates them. It returns the same builder, ready for Open.
func (b *Builder) Build(ctx context.Context) (*Builder, error) {
	v := newValidator()
	if err := v.validateQueriesGiven(b.queryTexts, b.queryFiles); err != nil {
		return nil, err
	}

	b.queries = b.queries[:0]
	texts := append([]string(nil), b.queryTexts...)
	for _, file := range b.queryFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := v.validateQueryFile(file); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file) //nolint:gosec // Query files are chosen by the caller
		if err != nil {
			return nil, sourceError("read query", file, err)
		}
		texts = append(texts, string(data))
	}
	for _, text := range texts {
		queries, err := parser.Parse(text)
		if err != nil {
			return nil, err
		}
		b.queries = append(b.queries, queries...)
	}

	src, format, err := b.resolveInput(v)
	if err != nil {
		return nil, err
	}
	b.source = src
	b.format = format
	return b, nil
}

// resolveInput creates the Source and the Format the table is read with.
func (b *Builder) resolveInput(v *validator) (Source, Format, error) {
	in := b.input
	if in == nil {
		from := b.queries[0].From
		if len(from) == 0 {
			return nil, Format{}, ErrNoSource
		}
		in = &builderInput{path: from[0]}
	}

	var (
		src      Source
		fragment FormatOptions
	)
	switch {
	case in.reader != nil:
		if err := v.validateReader(in.reader, in.name); err != nil {
			return nil, Format{}, err
		}
		spool := NewReaderSource(in.name, in.reader)
		b.spools = append(b.spools, spool)
		src = spool
	case in.fsys != nil:
		if err := v.validateFSFile(in.fsys, in.name); err != nil {
			return nil, Format{}, err
		}
		src = NewFSSource(in.fsys, in.name)
	default:
		parsed := ParseSourceURL(in.path)
		p := filePathFromURL(parsed.RemainingURL)
		if err := v.validatePath(p); err != nil {
			return nil, Format{}, err
		}
		src = NewFileSource(p)
		fragment = parsed.Options
	}

	format := DetectFormat(src.Name())
	if b.fileType != nil {
		format.Type = *b.fileType
	}
	if b.compress != nil {
		format = format.WithCompression(*b.compress)
	}
	if b.sheet != "" {
		format = format.WithSheet(b.sheet)
	}
	format = format.WithOptions(b.defaults).WithOptions(fragment).WithOptions(b.overrides)
	if format.Type == FileTypeUnsupported {
		return nil, Format{}, NewErrorContext("build", src.Name()).Error(ErrUnsupportedFormat)
	}
	return src, format, nil
}

// Open creates the execution. Build must have succeeded before.
func (b *Builder) Open(_ context.Context) (*Execution, error) {
	if b.source == nil || len(b.queries) == 0 {
		return nil, fmt.Errorf("%w: builder is not built, did you call Build()?", ErrUsage)
	}
	return NewExecution(b.source, b.format, b.queries, b.opts...)
}

// Format returns the format resolved by Build.
func (b *Builder) Format() Format {
	return b.format
}

// Cleanup removes temporary files created for reader inputs.
func (b *Builder) Cleanup() error {
	var errs []error
	for _, spool := range b.spools {
		if err := spool.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	b.spools = nil
	return errors.Join(errs...)
}

// mergeFormatOptions returns base with every option set in next applied.
func mergeFormatOptions(base, next FormatOptions) FormatOptions {
	if next.Encoding != "" {
		base.Encoding = next.Encoding
	}
	if next.Header != HeaderUnknown {
		base.Header = next.Header
	}
	if next.Delimiter != 0 {
		base.Delimiter = next.Delimiter
	}
	if next.QuoteChar != 0 {
		base.QuoteChar = next.QuoteChar
	}
	if next.EscapeChar != 0 {
		base.EscapeChar = next.EscapeChar
	}
	return base
}
