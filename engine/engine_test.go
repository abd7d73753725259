package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/tablequery/domain/model"
	"github.com/nao1215/tablequery/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTable is a table held in memory.
type memTable struct {
	vars []model.Var
	rows []model.Binding
}

// newMemTable builds a table of plain literals with a ROWNUM column.
// Empty cells are unbound.
func newMemTable(header []string, records ...[]string) *memTable {
	t := &memTable{}
	for _, h := range header {
		t.vars = append(t.vars, model.Var(h))
	}
	t.vars = append(t.vars, model.RowNum)
	for i, record := range records {
		b := model.Binding{model.RowNum: model.NewTypedLiteral(strconv.Itoa(i+1), model.XSDInteger)}
		for j, cell := range record {
			if cell != "" {
				b[t.vars[j]] = model.NewLiteral(cell)
			}
		}
		t.rows = append(t.rows, b)
	}
	return t
}

func (t *memTable) Vars() ([]model.Var, error) { return t.vars, nil }

func (t *memTable) IsEmpty() (bool, error) { return len(t.rows) == 0, nil }

func (t *memTable) Size() (int, error) { return len(t.rows), nil }

func (t *memTable) Rows() (model.RowCursor, error) {
	return model.NewSliceCursor(t.vars, t.rows), nil
}

func (t *memTable) Close() error { return nil }

// people is the table most tests run against.
func people() *memTable {
	return newMemTable([]string{"name", "age", "city"},
		[]string{"Alice", "34", "Paris"},
		[]string{"Bob", "27", ""},
		[]string{"Carol", "41", "Berlin"},
		[]string{"Dave", "n/a", "Paris"},
	)
}

// bind parses query and puts a data element reading table at the front of
// its pattern, the way the root package does.
func bind(t *testing.T, query string, table model.Table) *model.Query {
	t.Helper()

	q, err := parser.ParseOne(query)
	require.NoError(t, err)

	vars, err := table.Vars()
	require.NoError(t, err)
	data := &model.Data{Table: table}
	for _, v := range vars {
		if v == model.RowNum && q.IsQueryResultStar() {
			continue
		}
		data.AddVar(v)
	}
	group := &model.Group{Elements: []model.Element{data}}
	if existing, ok := q.Pattern.(*model.Group); ok {
		group.Elements = append(group.Elements, existing.Elements...)
	}
	q.Pattern = group
	if q.IsQueryResultStar() {
		q.ExpandStar()
	}
	return q
}

// selectAll runs a SELECT query and renders every solution as
// "var=term" pairs in projection order; unbound variables are left out.
func selectAll(t *testing.T, q *model.Query) []string {
	t.Helper()

	solutions, err := New().Select(context.Background(), q)
	require.NoError(t, err)
	defer solutions.Close()

	var out []string
	for solutions.Next() {
		var parts []string
		for _, v := range solutions.Vars() {
			if n, ok := solutions.Binding().Get(v); ok {
				parts = append(parts, v.Name()+"="+n.String())
			}
		}
		out = append(out, strings.Join(parts, " "))
	}
	require.NoError(t, solutions.Err())
	return out
}

func TestEngine_SelectFilter(t *testing.T) {
	t.Parallel()

	q := bind(t, `
		PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
		SELECT ?name WHERE { FILTER(xsd:integer(?age) > 30) }`, people())

	assert.Equal(t, []string{`name="Alice"`, `name="Carol"`}, selectAll(t, q))
}

func TestEngine_SelectStarKeepsRowOrderAndUnboundCells(t *testing.T) {
	t.Parallel()

	q := bind(t, `SELECT * {}`, people())
	require.Equal(t, []model.Var{"name", "age", "city"}, q.Projection)

	assert.Equal(t, []string{
		`name="Alice" age="34" city="Paris"`,
		`name="Bob" age="27"`,
		`name="Carol" age="41" city="Berlin"`,
		`name="Dave" age="n/a" city="Paris"`,
	}, selectAll(t, q))
}

func TestEngine_RowNum(t *testing.T) {
	t.Parallel()

	q := bind(t, `SELECT ?ROWNUM ?name WHERE { FILTER(?ROWNUM >= 3) }`, people())

	assert.Equal(t, []string{
		`ROWNUM="3"^^<http://www.w3.org/2001/XMLSchema#integer> name="Carol"`,
		`ROWNUM="4"^^<http://www.w3.org/2001/XMLSchema#integer> name="Dave"`,
	}, selectAll(t, q))
}

func TestEngine_BoundAndCoalesce(t *testing.T) {
	t.Parallel()

	q := bind(t, `
		SELECT ?name ?where WHERE {
			FILTER(!BOUND(?city) || ?city = "Berlin")
			BIND(COALESCE(?city, "nowhere") AS ?where)
		}`, people())

	assert.Equal(t, []string{
		`name="Bob" where="nowhere"`,
		`name="Carol" where="Berlin"`,
	}, selectAll(t, q))
}

func TestEngine_TypeErrorsLeaveVariablesUnbound(t *testing.T) {
	t.Parallel()

	q := bind(t, `
		PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
		SELECT ?name ?next WHERE { BIND(xsd:integer(?age) + 1 AS ?next) }`, people())

	got := selectAll(t, q)
	require.Len(t, got, 4)
	assert.Equal(t, `name="Alice" next="35"^^<http://www.w3.org/2001/XMLSchema#integer>`, got[0])
	assert.Equal(t, `name="Dave"`, got[3])
}

func TestEngine_DistinctKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	q := bind(t, `SELECT DISTINCT ?city WHERE { FILTER(BOUND(?city)) }`, people())
	assert.Equal(t, []string{`city="Paris"`, `city="Berlin"`}, selectAll(t, q))

	q = bind(t, `SELECT DISTINCT ?nothing {}`, people())
	assert.Equal(t, []string{""}, selectAll(t, q))
}

func TestEngine_LimitOffset(t *testing.T) {
	t.Parallel()

	q := bind(t, `SELECT ?name {} LIMIT 2 OFFSET 1`, people())
	assert.Equal(t, []string{`name="Bob"`, `name="Carol"`}, selectAll(t, q))

	q = bind(t, `SELECT ?name {} LIMIT 0`, people())
	assert.Empty(t, selectAll(t, q))
}

func TestEngine_Functions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{name: "ucase", expr: `UCASE(?name)`, expected: `"ALICE"`},
		{name: "strlen", expr: `STRLEN(?name)`, expected: `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{name: "substr", expr: `SUBSTR(?name, 2, 3)`, expected: `"lic"`},
		{name: "concat", expr: `CONCAT(?name, "@", ?city)`, expected: `"Alice@Paris"`},
		{name: "contains", expr: `CONTAINS(?name, "lic")`, expected: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "strbefore", expr: `STRBEFORE(?name, "c")`, expected: `"Ali"`},
		{name: "strafter", expr: `STRAFTER(?name, "l")`, expected: `"ice"`},
		{name: "replace", expr: `REPLACE(?name, "[aeiou]", "_", "i")`, expected: `"_l_c_"`},
		{name: "regex", expr: `REGEX(?name, "^al", "i")`, expected: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "encode for uri", expr: `ENCODE_FOR_URI(CONCAT(?city, " / é"))`, expected: `"Paris%20%2F%20%C3%A9"`},
		{name: "iri", expr: `IRI(CONCAT("http://example.com/", ?name))`, expected: `<http://example.com/Alice>`},
		{name: "invalid iri", expr: `IRI(CONCAT("http://example.com/", ?name, " x"))`, expected: ``},
		{name: "str of iri", expr: `STR(<http://example.com/>)`, expected: `"http://example.com/"`},
		{name: "datatype", expr: `DATATYPE(xsd:integer(?age))`, expected: `<http://www.w3.org/2001/XMLSchema#integer>`},
		{name: "lang", expr: `LANG(STRLANG(?name, "EN"))`, expected: `"en"`},
		{name: "division", expr: `xsd:integer(?age) / 4`, expected: `"8.5"^^<http://www.w3.org/2001/XMLSchema#decimal>`},
		{name: "double", expr: `xsd:double(CONCAT(?age, "00"))`, expected: `"3.4E3"^^<http://www.w3.org/2001/XMLSchema#double>`},
		{name: "decimal", expr: `xsd:decimal(?age)`, expected: `"34.0"^^<http://www.w3.org/2001/XMLSchema#decimal>`},
		{name: "boolean", expr: `xsd:boolean("1")`, expected: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "string cast", expr: `xsd:string(xsd:integer(?age) * 2)`, expected: `"68"`},
		{name: "if", expr: `IF(xsd:integer(?age) > 30, "old", "young")`, expected: `"old"`},
		{name: "is literal", expr: `isLiteral(?name)`, expected: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "is numeric", expr: `isNumeric(?age)`, expected: `"false"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "round", expr: `ROUND(xsd:decimal("2.5"))`, expected: `"3.0"^^<http://www.w3.org/2001/XMLSchema#decimal>`},
		{name: "abs", expr: `ABS(-xsd:integer(?age))`, expected: `"34"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{name: "string compare", expr: `?name < "Bob"`, expected: `"true"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
		{name: "iri never equals literal", expr: `<http://example.com/> = ?name`, expected: `"false"^^<http://www.w3.org/2001/XMLSchema#boolean>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := bind(t, `
				PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>
				SELECT ?v WHERE { BIND(`+tt.expr+` AS ?v) } LIMIT 1`, people())
			got := selectAll(t, q)
			require.Len(t, got, 1)
			assert.Equal(t, tt.expected, strings.TrimPrefix(got[0], "v="))
		})
	}
}

func TestEngine_UUIDIsFreshPerRow(t *testing.T) {
	t.Parallel()

	q := bind(t, `SELECT ?id WHERE { BIND(STRUUID() AS ?id) }`, people())
	got := selectAll(t, q)
	require.Len(t, got, 4)
	assert.NotEqual(t, got[0], got[1])
}

func TestEngine_Construct(t *testing.T) {
	t.Parallel()

	q := bind(t, `
		PREFIX ex: <http://example.com/>
		CONSTRUCT {
			?person a ex:Person ;
				ex:name ?name ;
				ex:city ?city ;
				ex:address _:addr .
			_:addr ex:label ?name .
			?name ex:invalid ?city .
		}
		WHERE { BIND(IRI(CONCAT("http://example.com/p/", ?name)) AS ?person) }
		LIMIT 2`, people())

	triples, err := New().Construct(context.Background(), q)
	require.NoError(t, err)
	defer triples.Close()

	var got []model.Triple
	for triples.Next() {
		got = append(got, triples.Triple())
	}
	require.NoError(t, triples.Err())

	// Alice: type, name, city, address, label. Bob has no city.
	require.Len(t, got, 9)
	alice := model.NewIRI("http://example.com/p/Alice")
	assert.Equal(t, model.Triple{S: alice, P: model.NewIRI(model.RDFType), O: model.NewIRI("http://example.com/Person")}, got[0])
	assert.Equal(t, model.Triple{S: alice, P: model.NewIRI("http://example.com/city"), O: model.NewLiteral("Paris")}, got[2])

	aliceAddr := got[3].O
	assert.True(t, aliceAddr.IsBlank())
	assert.Equal(t, aliceAddr, got[4].S)

	bobAddr := got[7].O
	assert.True(t, bobAddr.IsBlank())
	assert.NotEqual(t, aliceAddr, bobAddr)
	for _, triple := range got {
		assert.True(t, triple.Valid())
	}
}

func TestEngine_JoinsDataElements(t *testing.T) {
	t.Parallel()

	cities := newMemTable([]string{"city", "country"},
		[]string{"Paris", "France"},
		[]string{"Berlin", "Germany"},
	)
	q := bind(t, `SELECT ?name ?country {}`, people())
	group := q.Pattern.(*model.Group)
	group.Elements = append(group.Elements, &model.Data{Vars: []model.Var{"city", "country"}, Table: cities})

	assert.Equal(t, []string{
		`name="Alice" country="France"`,
		`name="Bob" country="France"`,
		`name="Bob" country="Germany"`,
		`name="Carol" country="Germany"`,
		`name="Dave" country="France"`,
	}, selectAll(t, q))
}

func TestEngine_NoDataElement(t *testing.T) {
	t.Parallel()

	q, err := parser.ParseOne(`SELECT ?x WHERE { BIND("constant" AS ?x) }`)
	require.NoError(t, err)
	assert.Equal(t, []string{`x="constant"`}, selectAll(t, q))
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := New(WithChunkSize(2))

	selectQuery := bind(t, `SELECT ?name {}`, people())
	_, err := e.Construct(ctx, selectQuery)
	assert.ErrorIs(t, err, ErrQueryType)

	constructQuery := bind(t, `CONSTRUCT { ?s ?p ?o } {}`, people())
	_, err = e.Select(ctx, constructQuery)
	assert.ErrorIs(t, err, ErrQueryType)

	_, err = e.Select(ctx, bind(t, `SELECT ?x WHERE { BIND(NOSUCH(?name) AS ?x) }`, people()))
	assert.ErrorIs(t, err, ErrUnknownFunction)

	_, err = e.Select(ctx, bind(t, `SELECT ?x WHERE { BIND(UCASE(?name, ?city) AS ?x) }`, people()))
	assert.ErrorIs(t, err, ErrArity)

	_, err = e.Select(ctx, bind(t, `SELECT ?name WHERE { BIND("x" AS ?name) }`, people()))
	assert.ErrorIs(t, err, ErrBindScope)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Select(cancelled, bind(t, `SELECT ?name {}`, people()))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestEngine_ChunkedLoad(t *testing.T) {
	t.Parallel()

	records := make([][]string, 0, 25)
	for i := range 25 {
		records = append(records, []string{strconv.Itoa(i)})
	}
	q := bind(t, `SELECT ?ROWNUM {} OFFSET 23`, newMemTable([]string{"n"}, records...))

	solutions, err := New(WithChunkSize(10)).Select(context.Background(), q)
	require.NoError(t, err)
	defer solutions.Close()

	var rows []string
	for solutions.Next() {
		n, ok := solutions.Binding().Get(model.RowNum)
		require.True(t, ok)
		rows = append(rows, n.Value)
	}
	assert.Equal(t, []string{"24", "25"}, rows)
}
