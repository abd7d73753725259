package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nao1215/tablequery/domain/model"
)

// DefaultChunkSize is the number of rows inserted per transaction.
const DefaultChunkSize = 1000

// Engine evaluates SELECT and CONSTRUCT queries. It holds no state between
// evaluations and is safe for concurrent use.
type Engine struct {
	logger    *slog.Logger
	chunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for compiled statements and load statistics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithChunkSize sets the number of rows inserted per transaction while
// loading a table. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:    slog.Default(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Select evaluates a SELECT query. The returned solutions own a database
// and must be closed.
func (e *Engine) Select(ctx context.Context, q *model.Query) (model.Solutions, error) {
	if !q.IsSelectType() {
		return nil, fmt.Errorf("%w: %s query given to Select", ErrQueryType, q.Type)
	}
	solutions, err := e.run(ctx, q, q.ResultVars())
	if err != nil {
		return nil, err
	}
	return solutions, nil
}

// Construct evaluates a CONSTRUCT query and streams the template instances
// of its solutions. Template triples that are not valid RDF for a solution
// are skipped.
func (e *Engine) Construct(ctx context.Context, q *model.Query) (model.TripleIterator, error) {
	if q.Type != model.QueryTypeConstruct {
		return nil, fmt.Errorf("%w: %s query given to Construct", ErrQueryType, q.Type)
	}
	solutions, err := e.run(ctx, q, q.TemplateVars())
	if err != nil {
		return nil, err
	}
	return newConstructIterator(q.Template, solutions), nil
}

// run loads the data elements of q into a fresh database and runs the
// compiled statement.
func (e *Engine) run(ctx context.Context, q *model.Query, outVars []model.Var) (*solutions, error) {
	p, err := flatten(q.Pattern)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Temporary tables live on one connection.
	db.SetMaxOpenConns(1)

	tables := make([]*dataTable, 0, len(p.data))
	for i, d := range p.data {
		t, err := e.load(ctx, db, "t"+strconv.Itoa(i), d)
		if err != nil {
			_ = db.Close() // Ignore close error during error handling
			return nil, err
		}
		tables = append(tables, t)
	}

	compiled, err := compileQuery(q, p, tables, outVars)
	if err != nil {
		_ = db.Close() // Ignore close error during error handling
		return nil, err
	}
	e.logger.Debug("compiled query", "sql", compiled.sql, "params", len(compiled.args))

	rows, err := db.QueryContext(ctx, compiled.sql, compiled.args...)
	if err != nil {
		_ = db.Close() // Ignore close error during error handling
		return nil, fmt.Errorf("failed to evaluate query: %w", err)
	}
	return newSolutions(db, rows, compiled), nil
}

// load copies the rows of d into a temporary table, committing every
// chunkSize rows.
func (e *Engine) load(ctx context.Context, db *sql.DB, name string, d *model.Data) (*dataTable, error) {
	t := &dataTable{
		name:    name,
		element: d,
		types:   make([]valueType, len(d.Vars)),
		mixed:   make([]bool, len(d.Vars)),
	}

	columns := []string{seqColumn + " INTEGER PRIMARY KEY"}
	placeholders := []string{"?"}
	for _, v := range d.Vars {
		columns = append(columns, column(v))
		placeholders = append(placeholders, "?")
	}
	create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", name, strings.Join(columns, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, strings.Join(placeholders, ", "))

	if d.Table == nil {
		return t, nil
	}
	cursor, err := d.Table.Rows()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close() // The rows are loaded or the load failed already
	}()

	seen := make([]bool, len(d.Vars))
	loader := &chunkLoader{db: db, insert: insert, chunkSize: e.chunkSize}
	defer loader.abort()

	seq := int64(0)
	for cursor.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq++
		binding := cursor.Binding()
		values := make([]any, 0, len(d.Vars)+1)
		values = append(values, seq)
		for i, v := range d.Vars {
			n, ok := binding.Get(v)
			if !ok {
				values = append(values, nil)
				continue
			}
			value, typ, err := nodeValue(n)
			if err != nil {
				return nil, err
			}
			switch {
			case !seen[i]:
				seen[i] = true
				t.types[i] = typ
			case t.types[i] != typ:
				t.mixed[i] = true
			}
			values = append(values, value)
		}
		if err := loader.add(ctx, values); err != nil {
			return nil, err
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if err := loader.commit(); err != nil {
		return nil, err
	}

	for i := range t.types {
		if t.mixed[i] {
			t.types[i] = typeString
		}
	}
	e.logger.Debug("loaded data table", "table", name, "rows", seq, "vars", len(d.Vars))
	return t, nil
}

// chunkLoader inserts rows inside transactions of at most chunkSize rows.
type chunkLoader struct {
	db        *sql.DB
	insert    string
	chunkSize int

	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
}

func (l *chunkLoader) add(ctx context.Context, values []any) error {
	if l.tx == nil {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, l.insert) //nolint:sqlclosecheck // Statement is closed on commit
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error during error handling
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		l.tx, l.stmt = tx, stmt
	}
	if _, err := l.stmt.ExecContext(ctx, values...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	l.pending++
	if l.pending >= l.chunkSize {
		return l.commit()
	}
	return nil
}

func (l *chunkLoader) commit() error {
	if l.tx == nil {
		return nil
	}
	_ = l.stmt.Close() // The transaction result is what matters
	err := l.tx.Commit()
	l.tx, l.stmt, l.pending = nil, nil, 0
	if err != nil {
		return fmt.Errorf("failed to commit rows: %w", err)
	}
	return nil
}

func (l *chunkLoader) abort() {
	if l.tx == nil {
		return
	}
	_ = l.stmt.Close()   // Ignore close error during error handling
	_ = l.tx.Rollback() // Ignore rollback error during error handling
	l.tx, l.stmt = nil, nil
}

// nodeValue returns the SQL value stored for n and its static type.
func nodeValue(n model.Node) (any, valueType, error) {
	switch n.Kind {
	case model.KindIRI:
		return n.Value, typeIRI, nil
	case model.KindLiteral:
	default:
		return nil, typeString, fmt.Errorf("%w: %s term in table data", ErrUnsupported, nodeKindName(n.Kind))
	}
	if n.Lang != "" {
		return n.Value, valueType{kind: kindLang, lang: n.Lang}, nil
	}

	t := typeOfDatatype(n.Datatype)
	lexical := strings.TrimSpace(n.Value)
	switch t.kind {
	case kindInteger:
		if v, err := strconv.ParseInt(lexical, 10, 64); err == nil {
			return v, t, nil
		}
	case kindDecimal, kindDouble:
		if v, ok := parseDouble(lexical); ok {
			return v, t, nil
		}
	case kindBoolean:
		if v, ok := parseBoolean(lexical); ok {
			return v, t, nil
		}
	default:
		return n.Value, t, nil
	}
	return n.Value, valueType{kind: kindTyped, datatype: n.Datatype}, nil
}

func nodeKindName(k model.NodeKind) string {
	if k == model.KindBlank {
		return "blank node"
	}
	return "invalid"
}
