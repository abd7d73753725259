package tablequery

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/nao1215/tablequery/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLTSVCursor(t *testing.T) {
	t.Parallel()

	content := "name:Alice\tage:34\n\nname:Bob\tcity:Paris\nbroken\n"
	cursor, err := NewFormat(FileTypeLTSV).OpenCursor(NewBytesSource("people.ltsv", []byte(content)))
	require.NoError(t, err)

	assert.Equal(t, []model.Var{"name", "age", "city", model.RowNum}, cursor.Vars())
	assert.Equal(t, [][]string{
		{"name=Alice", "age=34", "ROWNUM=1"},
		{"name=Bob", "city=Paris", "ROWNUM=2"},
	}, readAll(t, cursor))
}

func TestLTSVCursor_Empty(t *testing.T) {
	t.Parallel()

	cursor, err := NewFormat(FileTypeLTSV).OpenCursor(NewBytesSource("empty.ltsv", nil))
	require.NoError(t, err)
	assert.Equal(t, []model.Var{model.RowNum}, cursor.Vars())
	assert.Empty(t, readAll(t, cursor))
}

func xlsxBytes(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for name, rows := range sheets {
		if name != "Sheet1" {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestXLSXCursor(t *testing.T) {
	t.Parallel()

	data := xlsxBytes(t, map[string][][]any{
		"Sheet1": {
			{"name", "age"},
			{"Alice", 34},
			{"Bob"},
		},
		"Other": {
			{"x"},
			{"1"},
		},
	})

	t.Run("first sheet with header", func(t *testing.T) {
		t.Parallel()
		format := NewFormat(FileTypeXLSX).WithHeader(HeaderPresent)
		assert.Equal(t, [][]string{
			{"name=Alice", "age=34", "ROWNUM=1"},
			{"name=Bob", "ROWNUM=2"},
		}, openRows(t, format, NewBytesSource("book.xlsx", data)))
	})

	t.Run("named sheet", func(t *testing.T) {
		t.Parallel()
		format := NewFormat(FileTypeXLSX).WithHeader(HeaderPresent).WithSheet("Other")
		assert.Equal(t, [][]string{
			{"x=1", "ROWNUM=1"},
		}, openRows(t, format, NewBytesSource("book.xlsx", data)))
	})

	t.Run("without header rows are padded", func(t *testing.T) {
		t.Parallel()
		format := NewFormat(FileTypeXLSX).WithHeader(HeaderAbsent)
		cursor, err := format.OpenCursor(NewBytesSource("book.xlsx", data))
		require.NoError(t, err)
		assert.Equal(t, []model.Var{"a", "b", model.RowNum}, cursor.Vars())
		assert.Equal(t, [][]string{
			{"a=name", "b=age", "ROWNUM=1"},
			{"a=Alice", "b=34", "ROWNUM=2"},
			{"a=Bob", "ROWNUM=3"},
		}, readAll(t, cursor))
	})

	t.Run("missing sheet", func(t *testing.T) {
		t.Parallel()
		format := NewFormat(FileTypeXLSX).WithHeader(HeaderPresent).WithSheet("Nope")
		_, err := format.OpenCursor(NewBytesSource("book.xlsx", data))
		require.ErrorIs(t, err, ErrSource)
	})

	t.Run("not a workbook", func(t *testing.T) {
		t.Parallel()
		_, err := NewFormat(FileTypeXLSX).OpenCursor(NewBytesSource("book.xlsx", []byte("plain text")))
		require.ErrorIs(t, err, ErrSource)
	})
}

func parquetBytes(t *testing.T) []byte {
	t.Helper()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64},
		{Name: "active", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()
	builder.Field(0).(*array.StringBuilder).AppendValues([]string{"Alice", "Bob"}, nil)
	builder.Field(1).(*array.Int64Builder).AppendValues([]int64{34, 0}, []bool{true, false})
	builder.Field(2).(*array.Float64Builder).AppendValues([]float64{1.5, 2}, nil)
	builder.Field(3).(*array.BooleanBuilder).AppendValues([]bool{true, false}, nil)

	record := builder.NewRecord()
	defer record.Release()
	table := array.NewTableFromRecords(schema, []arrow.Record{record})
	defer table.Release()

	var buf bytes.Buffer
	require.NoError(t, pqarrow.WriteTable(table, &buf, 1024, nil, pqarrow.DefaultWriterProps()))
	return buf.Bytes()
}

func TestParquetCursor(t *testing.T) {
	t.Parallel()

	data := parquetBytes(t)

	t.Run("plain", func(t *testing.T) {
		t.Parallel()
		cursor, err := NewFormat(FileTypeParquet).OpenCursor(NewBytesSource("people.parquet", data))
		require.NoError(t, err)
		assert.Equal(t, []model.Var{"name", "age", "score", "active", model.RowNum}, cursor.Vars())
		assert.Equal(t, [][]string{
			{"name=Alice", "age=34", "score=1.5", "active=true", "ROWNUM=1"},
			{"name=Bob", "score=2", "active=false", "ROWNUM=2"},
		}, readAll(t, cursor))
	})

	t.Run("compressed", func(t *testing.T) {
		t.Parallel()
		format := DetectFormat("people.parquet.gz")
		rows := openRows(t, format, NewBytesSource("people.parquet.gz", gzipBytes(t, data)))
		assert.Len(t, rows, 2)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		cursor, err := NewFormat(FileTypeParquet).OpenCursor(NewBytesSource("empty.parquet", nil))
		require.NoError(t, err)
		assert.Empty(t, readAll(t, cursor))
	})

	t.Run("corrupt", func(t *testing.T) {
		t.Parallel()
		_, err := NewFormat(FileTypeParquet).OpenCursor(NewBytesSource("bad.parquet", []byte("PAR1 nonsense")))
		require.ErrorIs(t, err, ErrSource)
	})
}

func TestExecution_Parquet(t *testing.T) {
	t.Parallel()

	queries := mustParse(t, `SELECT ?name WHERE { FILTER(BOUND(?age)) }`)
	exec, err := NewExecution(NewBytesSource("people.parquet", parquetBytes(t)), NewFormat(FileTypeParquet), queries)
	require.NoError(t, err)
	defer exec.Close()

	solutions, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name=Alice"}}, readAll(t, solutions))
}
