package tablequery

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/nao1215/tablequery/domain/model"
)

// OutputFormat represents the format query results are written in
type OutputFormat int

const (
	// OutputFormatNTriples writes triples one per line
	OutputFormatNTriples OutputFormat = iota
	// OutputFormatCSV writes solutions as comma-separated values
	OutputFormatCSV
	// OutputFormatTSV writes solutions as tab-separated values
	OutputFormatTSV
	// OutputFormatJSON writes one JSON object per solution and line
	OutputFormatJSON
)

// String returns the string representation of OutputFormat
func (f OutputFormat) String() string {
	switch f {
	case OutputFormatCSV:
		return "csv"
	case OutputFormatTSV:
		return "tsv"
	case OutputFormatJSON:
		return "json"
	default:
		return "ntriples"
	}
}

// Extension returns the file extension for the format
func (f OutputFormat) Extension() string {
	switch f {
	case OutputFormatCSV:
		return ".csv"
	case OutputFormatTSV:
		return ".tsv"
	case OutputFormatJSON:
		return ".jsonl"
	default:
		return ".nt"
	}
}

// ParseOutputFormat parses an output format name.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(name) {
	case "", "nt", "ntriples", "n-triples":
		return OutputFormatNTriples, nil
	case "csv":
		return OutputFormatCSV, nil
	case "tsv":
		return OutputFormatTSV, nil
	case "json", "jsonl":
		return OutputFormatJSON, nil
	default:
		return OutputFormatNTriples, fmt.Errorf("%w: unknown output format %q", ErrUsage, name)
	}
}

// WriteOptions configure how results are written.
//
// Example:
//
//	options := NewWriteOptions().
//		WithFormat(OutputFormatTSV).
//		WithCompression(CompressionGZ)
//
//	err := WriteSolutions(w, solutions, options)
type WriteOptions struct {
	// Format is the output format
	Format OutputFormat
	// Compression is applied to the whole output
	Compression CompressionType
}

// NewWriteOptions creates default write options (N-Triples, no compression).
func NewWriteOptions() WriteOptions {
	return WriteOptions{
		Format:      OutputFormatNTriples,
		Compression: CompressionNone,
	}
}

// WithFormat sets the output format.
func (o WriteOptions) WithFormat(format OutputFormat) WriteOptions {
	o.Format = format
	return o
}

// WithCompression sets the output compression. bzip2 cannot be written.
func (o WriteOptions) WithCompression(compression CompressionType) WriteOptions {
	o.Compression = compression
	return o
}

// FileExtension returns the complete file extension including compression
func (o WriteOptions) FileExtension() string {
	return o.Format.Extension() + o.Compression.Extension()
}

// WriteTriples writes every triple of it as N-Triples. The iterator is
// consumed but not closed.
func WriteTriples(w io.Writer, it model.TripleIterator, opts WriteOptions) error {
	if opts.Format != OutputFormatNTriples {
		return fmt.Errorf("%w: triples can only be written as %s, not %s", ErrUsage, OutputFormatNTriples, opts.Format)
	}
	return withCompression(w, opts.Compression, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for it.Next() {
			if _, err := bw.WriteString(it.Triple().String() + "\n"); err != nil {
				return err
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
		return bw.Flush()
	})
}

// WriteSolutions writes the solutions of a SELECT query as CSV, TSV or
// JSON. CSV and TSV start with a row of variable names. Unbound values are
// empty cells or JSON nulls. The solutions are consumed but not closed.
func WriteSolutions(w io.Writer, s model.Solutions, opts WriteOptions) error {
	return withCompression(w, opts.Compression, func(w io.Writer) error {
		switch opts.Format {
		case OutputFormatCSV:
			return writeDelimited(w, s, ',')
		case OutputFormatTSV:
			return writeDelimited(w, s, '\t')
		case OutputFormatJSON:
			return writeJSON(w, s)
		default:
			return fmt.Errorf("%w: solutions cannot be written as %s", ErrUsage, opts.Format)
		}
	})
}

// withCompression runs write against w wrapped by the compression writer.
func withCompression(w io.Writer, compression CompressionType, write func(io.Writer) error) error {
	cw, closer, err := NewCompressionHandler(compression).CreateWriter(w)
	if err != nil {
		return err
	}
	if err := write(cw); err != nil {
		_ = closer() // Ignore close error during error handling
		return err
	}
	return closer()
}

func writeDelimited(w io.Writer, s model.Solutions, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter

	vars := s.Vars()
	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = v.Name()
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(vars))
	for s.Next() {
		b := s.Binding()
		for i, v := range vars {
			record[i] = ""
			if n, ok := b.Get(v); ok {
				record[i] = cellText(n)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, s model.Solutions) error {
	vars := s.Vars()
	for s.Next() {
		b := s.Binding()
		row := ordereddict.NewDict()
		for _, v := range vars {
			if n, ok := b.Get(v); ok {
				row.Set(v.Name(), cellText(n))
			} else {
				row.Set(v.Name(), nil)
			}
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode solution: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return s.Err()
}

// cellText is the text of a node in tabular output: the IRI, the blank
// node in _: notation or the lexical form of a literal.
func cellText(n model.Node) string {
	if n.IsBlank() {
		return n.String()
	}
	return n.Value
}
