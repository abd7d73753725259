package tablequery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/xuri/excelize/v2"
)

// The readers in this file need the whole input before the first row can be
// produced, so the formats they serve do not support streaming. Each one
// reads everything, releases the source and serves rows from memory.

// newLTSVCursor reads labeled tab-separated values. Labels become columns in
// order of first appearance; a missing label leaves the cell unbound.
func newLTSVCursor(reader io.Reader, closer func() error) (*recordCursor, error) {
	var (
		labels  []string
		index   = make(map[string]int)
		entries []map[string]string
	)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry := make(map[string]string)
		for pair := range strings.SplitSeq(line, "\t") {
			label, value, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			label = strings.TrimSpace(label)
			if _, exists := index[label]; !exists {
				index[label] = len(labels)
				labels = append(labels, label)
			}
			entry[label] = strings.TrimSpace(value)
		}
		if len(entry) > 0 {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = closer() // Ignore close error during error handling
		return nil, fmt.Errorf("failed to read LTSV: %w", err)
	}
	if err := closer(); err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(entries)+1)
	if len(labels) > 0 {
		records = append(records, labels)
	}
	for _, entry := range entries {
		row := make([]string, len(labels))
		for label, value := range entry {
			row[index[label]] = value
		}
		records = append(records, row)
	}
	return newRecordCursor(&sliceRecordReader{records: records}, nopCloser, true, true)
}

// newXLSXCursor reads one sheet of a workbook, the first one when sheet is
// empty. Leading empty rows are skipped.
func newXLSXCursor(reader io.Reader, closer func() error, sheet string, header bool) (*recordCursor, error) {
	rows, err := readXLSXRows(reader, sheet)
	if closeErr := closer(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}

	for len(rows) > 0 && len(rows[0]) == 0 {
		rows = rows[1:]
	}
	if !header {
		// Spreadsheets trim trailing empty cells, so pad to the widest row.
		width := 0
		for _, row := range rows {
			width = max(width, len(row))
		}
		for i, row := range rows {
			if len(row) < width {
				padded := make([]string, width)
				copy(padded, row)
				rows[i] = padded
			}
		}
	}
	return newRecordCursor(&sliceRecordReader{records: rows}, nopCloser, header, false)
}

func readXLSXRows(reader io.Reader, sheet string) ([][]string, error) {
	xlsxFile, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer func() {
		_ = xlsxFile.Close() // Ignore close error
	}()

	if sheet == "" {
		sheetNames := xlsxFile.GetSheetList()
		if len(sheetNames) == 0 {
			return nil, errors.New("no sheets found in XLSX file")
		}
		sheet = sheetNames[0]
	}

	iter, err := xlsxFile.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to open rows iterator for sheet %s: %w", sheet, err)
	}
	defer func() {
		_ = iter.Close() // Ignore close error
	}()

	var rows [][]string
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row in sheet %s: %w", sheet, err)
		}
		rows = append(rows, row)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// newParquetCursor reads every row group of a Parquet file. The schema
// field names are always used as column names; null values are unbound.
func newParquetCursor(reader io.Reader, closer func() error) (*recordCursor, error) {
	// Parquet requires random access
	data, err := io.ReadAll(reader)
	if closeErr := closer(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	if len(data) == 0 {
		return newRecordCursor(&sliceRecordReader{}, nopCloser, true, true)
	}

	records, err := readParquetRecords(data)
	if err != nil {
		return nil, err
	}
	return newRecordCursor(&sliceRecordReader{records: records}, nopCloser, true, true)
}

func readParquetRecords(data []byte) ([][]string, error) {
	pqReader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer func() {
		_ = pqReader.Close() // Ignore close error
	}()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	defer table.Release()

	schema := table.Schema()
	names := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		names[i] = field.Name
	}
	records := [][]string{names}

	tableReader := array.NewTableReader(table, 0)
	defer tableReader.Release()
	for tableReader.Next() {
		batch := tableReader.Record()
		for i := range int(batch.NumRows()) {
			row := make([]string, batch.NumCols())
			for j, col := range batch.Columns() {
				row[j] = arrowValueString(col, i)
			}
			records = append(records, row)
		}
	}
	if err := tableReader.Err(); err != nil {
		return nil, fmt.Errorf("error reading table records: %w", err)
	}
	return records, nil
}

// arrowValueString renders the value at row i of col as text. Nulls render
// as the empty string.
func arrowValueString(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Boolean:
		return strconv.FormatBool(a.Value(i))
	case *array.Int8:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10)
	case *array.Uint8:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint16:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint32:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint64:
		return strconv.FormatUint(a.Value(i), 10)
	case *array.Float32:
		return strconv.FormatFloat(float64(a.Value(i)), 'g', -1, 32)
	case *array.Float64:
		return strconv.FormatFloat(a.Value(i), 'g', -1, 64)
	default:
		return col.ValueStr(i)
	}
}
