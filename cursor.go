package tablequery

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/nao1215/tablequery/domain/model"
)

// recordReader yields one field list per call and io.EOF at the end.
type recordReader interface {
	Read() ([]string, error)
}

// recordCursor turns field lists into bindings. Column names come from the
// first record when header is true and are positional otherwise. ROWNUM is
// appended as the last variable.
type recordCursor struct {
	reader recordReader
	closer func() error
	vars   []model.Var
	width  int
	strict bool

	peeked  []string
	row     int64
	current model.Binding
	err     error
	done    bool
	closed  bool
}

// newRecordCursor reads the first record to fix the variable list. With
// strict set, every data row must have exactly as many fields as the first
// record; otherwise short rows are padded and long rows truncated.
func newRecordCursor(reader recordReader, closer func() error, header, strict bool) (*recordCursor, error) {
	c := &recordCursor{reader: reader, closer: closer, strict: strict}

	first, err := reader.Read()
	switch {
	case errors.Is(err, io.EOF):
		c.done = true
		c.vars = []model.Var{model.RowNum}
		return c, nil
	case err != nil:
		_ = closer() // Ignore close error during error handling
		return nil, readError(err)
	}

	var names []string
	if header {
		names = first
	} else {
		names = make([]string, len(first))
		c.peeked = first
	}
	vars, err := columnVars(names)
	if err != nil {
		_ = closer() // Ignore close error during error handling
		return nil, err
	}
	c.width = len(first)
	c.vars = append(vars, model.RowNum)
	return c, nil
}

func (c *recordCursor) Vars() []model.Var {
	return c.vars
}

func (c *recordCursor) Next() bool {
	c.current = nil
	if c.done || c.closed || c.err != nil {
		return false
	}

	record := c.peeked
	c.peeked = nil
	if record == nil {
		var err error
		record, err = c.reader.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			return false
		}
		if err != nil {
			c.err = readError(err)
			return false
		}
	}
	c.row++

	if len(record) != c.width {
		if c.strict {
			c.err = fmt.Errorf("%w: row %d has %d fields, expected %d", ErrFieldCount, c.row, len(record), c.width)
			return false
		}
		if len(record) > c.width {
			record = record[:c.width]
		}
	}

	binding := make(model.Binding, len(c.vars))
	for i, value := range record {
		if value == "" {
			continue
		}
		binding[c.vars[i]] = model.NewLiteral(value)
	}
	binding[model.RowNum] = model.NewTypedLiteral(strconv.FormatInt(c.row, 10), model.XSDInteger)
	c.current = binding
	return true
}

func (c *recordCursor) Binding() model.Binding {
	return c.current
}

func (c *recordCursor) Err() error {
	return c.err
}

func (c *recordCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil
	c.peeked = nil
	return c.closer()
}

// readError classifies a reader failure. Malformed quoting is a format
// error, everything else is a source error.
func readError(err error) error {
	if errors.Is(err, ErrFormat) || errors.Is(err, ErrSource) {
		return err
	}
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return fmt.Errorf("%w: %w", ErrSource, err)
}

// columnVars maps column names to variables. Blank names get the positional
// name of their column.
func columnVars(names []string) ([]model.Var, error) {
	vars := make([]model.Var, 0, len(names)+1)
	seen := make(map[model.Var]bool, len(names)+1)
	seen[model.RowNum] = true
	for i, name := range names {
		v := model.Var(sanitizeVarName(name))
		if v == "" {
			v = model.Var(positionalName(i))
		}
		if seen[v] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumnName, v)
		}
		seen[v] = true
		vars = append(vars, v)
	}
	return vars, nil
}

// sanitizeVarName trims name and replaces every character that cannot
// appear in a variable name with '_'.
func sanitizeVarName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

// positionalName returns the spreadsheet-style name of column i:
// a, b, ..., z, aa, ab, ...
func positionalName(i int) string {
	var buf []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('a' + (n-1)%26)}, buf...)
	}
	return string(buf)
}

// newDelimitedReader returns encoding/csv when the default quote and no
// escape character are configured, and quotedReader otherwise.
func (f Format) newDelimitedReader(r io.Reader) recordReader {
	if f.quoteChar() == defaultQuote && f.EscapeChar == 0 {
		csvReader := csv.NewReader(r)
		csvReader.Comma = f.delimiter()
		csvReader.FieldsPerRecord = -1
		csvReader.LazyQuotes = f.Type == FileTypeTSV
		return csvReader
	}
	return &quotedReader{
		r:         bufio.NewReader(r),
		delimiter: f.delimiter(),
		quote:     f.quoteChar(),
		escape:    f.EscapeChar,
		line:      1,
	}
}

// quotedReader reads delimited records with a configurable quote and
// escape character. Quotes inside a quoted field are written doubled or
// escaped. Blank lines are skipped.
type quotedReader struct {
	r         *bufio.Reader
	delimiter rune
	quote     rune
	escape    rune
	line      int
}

func (q *quotedReader) Read() ([]string, error) {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
		started  bool
		start    = q.line
	)
	endRecord := func() []string {
		return append(fields, field.String())
	}

	for {
		r, _, err := q.r.ReadRune()
		if errors.Is(err, io.EOF) {
			if inQuotes {
				return nil, fmt.Errorf("%w: unterminated quoted field starting on line %d", ErrFormat, start)
			}
			if !started {
				return nil, io.EOF
			}
			return endRecord(), nil
		}
		if err != nil {
			return nil, err
		}

		switch {
		case q.escape != 0 && r == q.escape:
			started = true
			next, _, err := q.r.ReadRune()
			if err != nil {
				if errors.Is(err, io.EOF) {
					field.WriteRune(r)
					continue
				}
				return nil, err
			}
			if next == '\n' {
				q.line++
			}
			field.WriteRune(next)
		case inQuotes:
			if r != q.quote {
				if r == '\n' {
					q.line++
				}
				field.WriteRune(r)
				continue
			}
			next, _, err := q.r.ReadRune()
			if err == nil && next == q.quote {
				field.WriteRune(q.quote)
				continue
			}
			if err == nil {
				_ = q.r.UnreadRune() // Cannot fail right after ReadRune
			}
			inQuotes = false
		case r == q.quote:
			started = true
			inQuotes = true
		case r == q.delimiter:
			started = true
			fields = append(fields, field.String())
			field.Reset()
		case r == '\r':
			next, _, err := q.r.ReadRune()
			if err == nil && next != '\n' {
				_ = q.r.UnreadRune() // Cannot fail right after ReadRune
				started = true
				field.WriteRune(r)
				continue
			}
			q.line++
			if started {
				return endRecord(), nil
			}
			start = q.line
		case r == '\n':
			q.line++
			if started {
				return endRecord(), nil
			}
			start = q.line
		default:
			started = true
			field.WriteRune(r)
		}
	}
}

// sliceRecordReader serves records that were read up front.
type sliceRecordReader struct {
	records [][]string
	pos     int
}

func (s *sliceRecordReader) Read() ([]string, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

func nopCloser() error {
	return nil
}
