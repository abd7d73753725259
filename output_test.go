package tablequery

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/nao1215/tablequery/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSolutions() model.Solutions {
	vars := []model.Var{"name", "note", "home"}
	return model.NewSliceCursor(vars, []model.Binding{
		{
			"name": model.NewLiteral("Alice"),
			"note": model.NewLiteral("says \"hi\", twice"),
			"home": model.NewIRI("http://example.com/alice"),
		},
		{
			"name": model.NewLangLiteral("Bob", "en"),
			"home": model.NewBlank("b0"),
		},
	})
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]OutputFormat{
		"":          OutputFormatNTriples,
		"nt":        OutputFormatNTriples,
		"N-Triples": OutputFormatNTriples,
		"csv":       OutputFormatCSV,
		"TSV":       OutputFormatTSV,
		"json":      OutputFormatJSON,
		"jsonl":     OutputFormatJSON,
	}
	for input, want := range tests {
		got, err := ParseOutputFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseOutputFormat("xml")
	require.ErrorIs(t, err, ErrUsage)
}

func TestWriteOptions(t *testing.T) {
	t.Parallel()

	opts := NewWriteOptions()
	assert.Equal(t, OutputFormatNTriples, opts.Format)
	assert.Equal(t, ".nt", opts.FileExtension())

	changed := opts.WithFormat(OutputFormatTSV).WithCompression(CompressionZSTD)
	assert.Equal(t, ".tsv.zst", changed.FileExtension())
	assert.Equal(t, ".nt", opts.FileExtension(), "options are values")

	assert.Equal(t, ".csv", OutputFormatCSV.Extension())
	assert.Equal(t, ".jsonl", OutputFormatJSON.Extension())
	assert.Equal(t, "json", OutputFormatJSON.String())
}

func TestWriteSolutions(t *testing.T) {
	t.Parallel()

	t.Run("csv", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteSolutions(&buf, sampleSolutions(), NewWriteOptions().WithFormat(OutputFormatCSV)))
		assert.Equal(t, "name,note,home\n"+
			"Alice,\"says \"\"hi\"\", twice\",http://example.com/alice\n"+
			"Bob,,_:b0\n", buf.String())
	})

	t.Run("tsv", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteSolutions(&buf, sampleSolutions(), NewWriteOptions().WithFormat(OutputFormatTSV)))
		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "name\tnote\thome", lines[0])
		assert.Equal(t, "Bob\t\t_:b0", lines[2])
	})

	t.Run("json lines keep variable order", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteSolutions(&buf, sampleSolutions(), NewWriteOptions().WithFormat(OutputFormatJSON)))

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 2)
		for _, line := range lines {
			assert.Less(t, strings.Index(line, `"name"`), strings.Index(line, `"note"`))
			assert.Less(t, strings.Index(line, `"note"`), strings.Index(line, `"home"`))
		}

		var second map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
		assert.Equal(t, map[string]any{"name": "Bob", "note": nil, "home": "_:b0"}, second)
	})

	t.Run("no rows", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		empty := model.NewSliceCursor([]model.Var{"a", "b"}, nil)
		require.NoError(t, WriteSolutions(&buf, empty, NewWriteOptions().WithFormat(OutputFormatCSV)))
		assert.Equal(t, "a,b\n", buf.String())
	})

	t.Run("compressed", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		opts := NewWriteOptions().WithFormat(OutputFormatCSV).WithCompression(CompressionGZ)
		require.NoError(t, WriteSolutions(&buf, sampleSolutions(), opts))

		r, err := gzip.NewReader(&buf)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "name,note,home\n"))
	})

	t.Run("ntriples is not tabular", func(t *testing.T) {
		t.Parallel()
		err := WriteSolutions(io.Discard, sampleSolutions(), NewWriteOptions())
		require.ErrorIs(t, err, ErrUsage)
	})

	t.Run("bzip2 cannot be written", func(t *testing.T) {
		t.Parallel()
		opts := NewWriteOptions().WithFormat(OutputFormatCSV).WithCompression(CompressionBZ2)
		require.Error(t, WriteSolutions(io.Discard, sampleSolutions(), opts))
	})
}

func TestWriteTriples(t *testing.T) {
	t.Parallel()

	triples := []model.Triple{
		{
			S: model.NewIRI("http://example.com/alice"),
			P: model.NewIRI("http://example.com/name"),
			O: model.NewLiteral("Alice \"A\"\n"),
		},
		{
			S: model.NewBlank("b0"),
			P: model.NewIRI("http://example.com/age"),
			O: model.NewTypedLiteral("34", model.XSDInteger),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTriples(&buf, model.NewSliceTriples(triples), NewWriteOptions()))
	assert.Equal(t, `<http://example.com/alice> <http://example.com/name> "Alice \"A\"\n" .`+"\n"+
		`_:b0 <http://example.com/age> "34"^^<http://www.w3.org/2001/XMLSchema#integer> .`+"\n", buf.String())

	err := WriteTriples(io.Discard, model.NewSliceTriples(triples), NewWriteOptions().WithFormat(OutputFormatCSV))
	require.ErrorIs(t, err, ErrUsage)
}
