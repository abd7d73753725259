package tablequery

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuilder(t *testing.T) {
	t.Parallel()

	builder := NewBuilder()
	require.NotNil(t, builder)
	assert.Empty(t, builder.queryTexts)
	assert.Empty(t, builder.queryFiles)
	assert.Nil(t, builder.input)
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := writeFile(t, dir, "people.csv", []byte(peopleCSV))
	queryPath := writeFile(t, dir, "names.rq", []byte(`SELECT ?name WHERE {} OFFSET 1`))

	t.Run("query file and path", func(t *testing.T) {
		t.Parallel()
		builder, err := NewBuilder().AddQueryFile(queryPath).SetPath(csvPath).Build(context.Background())
		require.NoError(t, err)
		assert.Len(t, builder.queries, 1)
		assert.Equal(t, FileTypeCSV, builder.Format().Type)

		exec, err := builder.Open(context.Background())
		require.NoError(t, err)
		defer exec.Close()
		rows, err := exec.ExecSelect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"name=Alice"}, {"name=Bob"}, {"name=Carol"}}, readAll(t, rows))
	})

	t.Run("queries from text and files are concatenated", func(t *testing.T) {
		t.Parallel()
		builder, err := NewBuilder().
			AddQuery(`CONSTRUCT { ?a ?b ?c } WHERE {} CONSTRUCT { ?c ?b ?a } WHERE {}`).
			AddQueryFile(queryPath).
			SetPath(csvPath).
			Build(context.Background())
		require.NoError(t, err)
		assert.Len(t, builder.queries, 3)
	})

	t.Run("input from FROM clause", func(t *testing.T) {
		t.Parallel()
		query := `SELECT ?name FROM <file://` + filepath.ToSlash(csvPath) + `#header=present> WHERE {}`
		builder, err := NewBuilder().AddQuery(query).Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, csvPath, builder.source.Name())
		assert.Equal(t, HeaderPresent, builder.Format().Header)
	})

	t.Run("explicit input wins over FROM", func(t *testing.T) {
		t.Parallel()
		query := `SELECT * FROM <file:///nowhere/missing.csv> WHERE {}`
		builder, err := NewBuilder().AddQuery(query).SetPath(csvPath).Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, csvPath, builder.source.Name())
	})

	t.Run("fs input", func(t *testing.T) {
		t.Parallel()
		fsys := fstest.MapFS{"data/people.tsv": &fstest.MapFile{Data: []byte("name\tage\nAlice\t34\n")}}
		builder, err := NewBuilder().AddQuery(`SELECT ?age WHERE {} OFFSET 1`).SetFS(fsys, "data/people.tsv").Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, FileTypeTSV, builder.Format().Type)

		exec, err := builder.Open(context.Background())
		require.NoError(t, err)
		defer exec.Close()
		rows, err := exec.ExecSelect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"age=34"}}, readAll(t, rows))
	})

	t.Run("reader input", func(t *testing.T) {
		t.Parallel()
		builder, err := NewBuilder().
			AddQuery(`SELECT ?Alice WHERE {}`).
			SetReader("stdin.csv", strings.NewReader("Alice\nBob\n")).
			WithFormatOptions(FormatOptions{Header: HeaderPresent}).
			Build(context.Background())
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, builder.Cleanup())
		}()
		require.Len(t, builder.spools, 1)

		exec, err := builder.Open(context.Background())
		require.NoError(t, err)
		defer exec.Close()
		rows, err := exec.ExecSelect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Alice=Bob"}}, readAll(t, rows))
	})

	t.Run("empty reader is an empty table", func(t *testing.T) {
		t.Parallel()
		builder, err := NewBuilder().
			AddQuery(`SELECT * WHERE {}`).
			SetReader("in.csv", strings.NewReader("")).
			Build(context.Background())
		require.NoError(t, err)
		defer func() {
			assert.NoError(t, builder.Cleanup())
		}()

		exec, err := builder.Open(context.Background())
		require.NoError(t, err)
		defer exec.Close()
		rows, err := exec.ExecSelect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, readAll(t, rows))
	})
}

func TestBuilder_FormatPrecedence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "data.txt", []byte("a|b\n1|2\n"))

	builder, err := NewBuilder().
		AddQuery(`SELECT * WHERE {}`).
		SetPath(path+"#delimiter=%7C;encoding=latin1").
		WithDefaultFormatOptions(FormatOptions{Delimiter: ';', Encoding: "utf-8", QuoteChar: '\''}).
		WithFormatOptions(FormatOptions{Encoding: "utf-8"}).
		Build(context.Background())
	require.NoError(t, err)

	format := builder.Format()
	assert.Equal(t, '|', format.Delimiter, "the location overrides defaults")
	assert.Equal(t, "utf-8", format.Encoding, "explicit options override the location")
	assert.Equal(t, '\'', format.QuoteChar, "defaults fill the gaps")
	assert.Equal(t, HeaderUnknown, format.Header)
}

func TestBuilder_TypeOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "export.dat", gzipBytes(t, []byte("a\tb\n1\t2\n")))

	builder, err := NewBuilder().
		AddQuery(`SELECT * WHERE {} OFFSET 1`).
		SetPath(path).
		WithFileType(FileTypeTSV).
		WithCompression(CompressionGZ).
		WithSheet("ignored").
		Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FileTypeTSV, builder.Format().Type)
	assert.Equal(t, CompressionGZ, builder.Format().Compression)
	assert.Equal(t, "ignored", builder.Format().Sheet)

	exec, err := builder.Open(context.Background())
	require.NoError(t, err)
	defer exec.Close()
	rows, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a=1", "b=2"}}, readAll(t, rows))
}

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := writeFile(t, dir, "people.csv", []byte(peopleCSV))
	ctx := context.Background()

	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{
			name:    "no queries",
			builder: NewBuilder().SetPath(csvPath),
			wantErr: ErrNoQueries,
		},
		{
			name:    "no input and no FROM",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`),
			wantErr: ErrNoSource,
		},
		{
			name:    "missing query file",
			builder: NewBuilder().AddQueryFile(filepath.Join(dir, "missing.rq")).SetPath(csvPath),
			wantErr: ErrFileNotFound,
		},
		{
			name:    "query file is a directory",
			builder: NewBuilder().AddQueryFile(dir).SetPath(csvPath),
			wantErr: ErrUsage,
		},
		{
			name:    "empty query file path",
			builder: NewBuilder().AddQueryFile(" ").SetPath(csvPath),
			wantErr: ErrUsage,
		},
		{
			name:    "missing input file",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetPath(filepath.Join(dir, "missing.csv")),
			wantErr: ErrFileNotFound,
		},
		{
			name:    "input is a directory",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetPath(dir),
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "empty path",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetPath(""),
			wantErr: ErrUsage,
		},
		{
			name:    "reader without name",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetReader("", strings.NewReader("a\n")),
			wantErr: ErrUsage,
		},
		{
			name:    "missing fs file",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetFS(fstest.MapFS{}, "people.csv"),
			wantErr: ErrFileNotFound,
		},
		{
			name:    "unsupported file type",
			builder: NewBuilder().AddQuery(`SELECT * WHERE {}`).SetPath(csvPath).WithFileType(FileTypeUnsupported),
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.builder.Build(ctx)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()
		_, err := NewBuilder().AddQuery(`SELECT WHERE`).SetPath(csvPath).Build(ctx)
		require.Error(t, err)
	})

	t.Run("open before build", func(t *testing.T) {
		t.Parallel()
		_, err := NewBuilder().AddQuery(`SELECT * WHERE {}`).SetPath(csvPath).Open(ctx)
		require.ErrorIs(t, err, ErrUsage)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewBuilder().AddQueryFile(filepath.Join(dir, "any.rq")).SetPath(csvPath).Build(cancelled)
		require.ErrorIs(t, err, context.Canceled)
	})
}
