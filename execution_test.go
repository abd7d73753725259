package tablequery

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/nao1215/tablequery/domain/model"
	"github.com/nao1215/tablequery/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func mustParse(t *testing.T, text string) []*model.Query {
	t.Helper()
	queries, err := parser.Parse(text)
	require.NoError(t, err)
	return queries
}

func ntriples(g *model.Graph) []string {
	var lines []string
	for _, tr := range g.Triples() {
		lines = append(lines, tr.String())
	}
	return lines
}

func TestExecution_SelectStarStreaming(t *testing.T) {
	t.Parallel()

	src := newCountingSource("rows.csv", "1,x\n2,y\n")
	exec, err := NewExecution(src, NewFormat(FileTypeCSV).WithHeader(HeaderAbsent), mustParse(t, `SELECT * WHERE {}`))
	require.NoError(t, err)
	defer exec.Close()

	solutions, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Var{"a", "b"}, solutions.Vars())
	assert.Equal(t, [][]string{{"a=1", "b=x"}, {"a=2", "b=y"}}, readAll(t, solutions))
}

func TestExecution_SelectStarMaterialized(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"1", "x"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"2", "y"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	format := NewFormat(FileTypeXLSX).WithHeader(HeaderAbsent)
	require.False(t, format.SupportsStreaming())

	src := newCountingSource("rows.xlsx", buf.String())
	exec, err := NewExecution(src, format, mustParse(t, `SELECT * WHERE {}`))
	require.NoError(t, err)
	defer exec.Close()
	assert.Equal(t, 0, src.Opens(), "the table is created on first use")

	solutions, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a=1", "b=x"}, {"a=2", "b=y"}}, readAll(t, solutions))
	require.IsType(t, &MaterializedTable{}, exec.table)
	assert.Equal(t, 1, src.Opens())
	assert.Equal(t, 0, src.Active(), "the workbook is released once buffered")

	size, err := exec.table.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	solutions, err = exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Len(t, readAll(t, solutions), 2)
	assert.Equal(t, 1, src.Opens(), "later passes are served from memory")
}

func TestExecution_StreamingFormatsReadPerPass(t *testing.T) {
	t.Parallel()

	src := newCountingSource("rows.csv", "1,x\n2,y\n")
	format := NewFormat(FileTypeCSV).WithHeader(HeaderAbsent)
	require.True(t, format.SupportsStreaming())
	exec, err := NewExecution(src, format, mustParse(t, `SELECT * WHERE {}`))
	require.NoError(t, err)
	defer exec.Close()

	solutions, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Len(t, readAll(t, solutions), 2)
	require.IsType(t, &LazyTable{}, exec.table)

	opens := src.Opens()
	solutions, err = exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Len(t, readAll(t, solutions), 2)
	assert.Equal(t, opens+1, src.Opens(), "every pass reads the source again")
	assert.Equal(t, 0, src.Active())
}

func TestExecution_HeaderInference(t *testing.T) {
	t.Parallel()

	const content = "name,age\nAlice,34\nBob,27\n"

	tests := []struct {
		name     string
		query    string
		header   HeaderMode
		offset   int64
		expected [][]string
	}{
		{
			name:     "offset one means header",
			query:    `SELECT ?name ?age WHERE {} OFFSET 1`,
			header:   HeaderPresent,
			offset:   0,
			expected: [][]string{{"name=Alice", "age=34"}, {"name=Bob", "age=27"}},
		},
		{
			name:     "no offset means no header",
			query:    `SELECT ?a ?b WHERE {}`,
			header:   HeaderAbsent,
			offset:   model.NoOffset,
			expected: [][]string{{"a=name", "b=age"}, {"a=Alice", "b=34"}, {"a=Bob", "b=27"}},
		},
		{
			name:     "other offsets skip data rows",
			query:    `SELECT ?a WHERE {} OFFSET 2`,
			header:   HeaderAbsent,
			offset:   2,
			expected: [][]string{{"a=Bob"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec, err := NewExecution(newCountingSource("people.csv", content), NewFormat(FileTypeCSV), mustParse(t, tt.query))
			require.NoError(t, err)
			defer exec.Close()

			assert.Equal(t, tt.header, exec.Format().Header)
			assert.Equal(t, tt.offset, exec.FirstQuery().Offset)

			solutions, err := exec.ExecSelect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, readAll(t, solutions))
		})
	}
}

func TestExecution_ExplicitHeaderIsNotInferred(t *testing.T) {
	t.Parallel()

	queries := mustParse(t, `SELECT ?name WHERE {} OFFSET 1`)
	exec, err := NewExecution(newCountingSource("people.csv", peopleCSV), headerCSV(), queries)
	require.NoError(t, err)
	defer exec.Close()

	assert.Equal(t, int64(1), exec.FirstQuery().Offset)
	solutions, err := exec.ExecSelect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name=Bob"}, {"name=Carol"}}, readAll(t, solutions))
}

func TestExecution_ExecGraphAcrossQueries(t *testing.T) {
	t.Parallel()

	queries := mustParse(t, `
		PREFIX ex: <http://example.com/>
		PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
		CONSTRUCT { ?p ex:name ?name } WHERE { BIND(IRI(CONCAT("http://example.com/p/", STR(?ROWNUM))) AS ?p) } OFFSET 1
		CONSTRUCT { ?p ex:age ?n } WHERE {
			BIND(IRI(CONCAT("http://example.com/p/", STR(?ROWNUM))) AS ?p)
			BIND(xsd:integer(?age) AS ?n)
			FILTER(?n > 30)
		}`)
	src := newCountingSource("people.csv", peopleCSV)
	exec, err := NewExecution(src, NewFormat(FileTypeCSV), queries)
	require.NoError(t, err)
	defer exec.Close()

	g := model.NewGraph()
	require.NoError(t, exec.ExecGraph(context.Background(), g))

	lines := ntriples(g)
	sort.Strings(lines)
	assert.Equal(t, []string{
		`<http://example.com/p/1> <http://example.com/age> "34"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
		`<http://example.com/p/1> <http://example.com/name> "Alice" .`,
		`<http://example.com/p/2> <http://example.com/name> "Bob" .`,
		`<http://example.com/p/3> <http://example.com/age> "41"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
		`<http://example.com/p/3> <http://example.com/name> "Carol" .`,
	}, lines)
	assert.Equal(t, 0, src.Active())
}

func TestExecution_ExecTriplesIsLazy(t *testing.T) {
	t.Parallel()

	queries := mustParse(t, `
		CONSTRUCT { <http://example.com/s> <http://example.com/p> ?name } WHERE {} OFFSET 1
		CONSTRUCT { <http://example.com/s> <http://example.com/q> ?age } WHERE {}`)
	exec, err := NewExecution(newCountingSource("people.csv", peopleCSV), NewFormat(FileTypeCSV), queries)
	require.NoError(t, err)
	defer exec.Close()

	triples, err := exec.ExecTriples(context.Background())
	require.NoError(t, err)
	defer triples.Close()

	require.True(t, triples.Next())
	assert.Equal(t, "Alice", triples.Triple().O.Value)
	second := exec.Queries()[1]
	assert.Len(t, second.Pattern.(*model.Group).Elements, 0, "later queries are rewritten when they run")

	count := 1
	for triples.Next() {
		count++
	}
	require.NoError(t, triples.Err())
	assert.Equal(t, 6, count)
}

func TestExecution_RewritesOnce(t *testing.T) {
	t.Parallel()

	exec, err := NewExecution(newCountingSource("people.csv", peopleCSV), headerCSV(), mustParse(t, `SELECT * WHERE {}`))
	require.NoError(t, err)
	defer exec.Close()

	require.NoError(t, exec.Rewrite())
	require.NoError(t, exec.Rewrite())
	for range 2 {
		solutions, err := exec.ExecSelect(context.Background())
		require.NoError(t, err)
		assert.Len(t, readAll(t, solutions), 3)
	}

	q := exec.FirstQuery()
	assert.Len(t, q.Pattern.(*model.Group).Elements, 1)
	assert.Equal(t, []model.Var{"name", "age"}, q.Projection)
}

func TestExecution_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := newCountingSource("people.csv", peopleCSV)

	_, err := NewExecution(src, headerCSV(), nil)
	require.ErrorIs(t, err, ErrNoQueries)
	_, err = NewExecution(nil, headerCSV(), mustParse(t, `SELECT * {}`))
	require.ErrorIs(t, err, ErrNoSource)

	exec, err := NewExecution(src, headerCSV(), mustParse(t, `CONSTRUCT { ?a ?b ?c } WHERE {}`))
	require.NoError(t, err)
	_, err = exec.ExecSelect(ctx)
	require.ErrorIs(t, err, ErrUsage)

	exec, err = NewExecution(src, headerCSV(), mustParse(t, `SELECT * {}`))
	require.NoError(t, err)
	_, err = exec.ExecTriples(ctx)
	require.ErrorIs(t, err, ErrUsage)

	require.NoError(t, exec.Close())
	require.NoError(t, exec.Close())
	_, err = exec.ExecSelect(ctx)
	require.ErrorIs(t, err, ErrExecutionClosed)
	require.ErrorIs(t, exec.ExecGraph(ctx, model.NewGraph()), ErrExecutionClosed)
}

func TestSelectAndConstruct(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "people.txt", []byte("name;age\nAlice;34\nBob;27\n"))
	location := path + "#header=present;delimiter=semicolon"

	rows, err := Select(context.Background(), location, `SELECT ?name WHERE { FILTER(?age < "30") }`)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name=Bob"}}, readAll(t, rows))

	g, err := Construct(context.Background(), "file://"+filepath.ToSlash(path)+"#header=present;delimiter=%3B",
		`CONSTRUCT { <http://example.com/x> <http://example.com/name> ?name } WHERE {}`)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	_, err = Select(context.Background(), filepath.Join(dir, "missing.csv"), `SELECT * {}`)
	require.ErrorIs(t, err, ErrFileNotFound)
}
