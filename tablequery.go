package tablequery

import (
	"context"
	"log/slog"

	"github.com/nao1215/tablequery/domain/model"
	"github.com/nao1215/tablequery/engine"
	"github.com/nao1215/tablequery/parser"
)

// Option configures tables and executions.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	engine      Engine
	memoryLimit *MemoryLimit
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.engine == nil {
		o.engine = engine.New(engine.WithLogger(o.logger))
	}
	return o
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEngine sets the query engine. The default is the SQLite backed engine
// of package engine.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithMemoryLimit bounds the memory used by tables that buffer their rows.
// There is no limit by default.
func WithMemoryLimit(limit *MemoryLimit) Option {
	return func(o *options) {
		o.memoryLimit = limit
	}
}

// Select runs a SELECT query over the table at location and returns its
// solutions. location is a file path that may carry format options in its
// fragment, for example "people.csv#header=present;delimiter=semicolon".
//
// Example usage:
//
//	rows, err := tablequery.Select(ctx, "people.csv", `
//		SELECT ?name ?age WHERE { FILTER(xsd:integer(?age) > 30) } OFFSET 1`)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rows.Close()
//
//	for rows.Next() {
//		name, _ := rows.Binding().Get("name")
//		fmt.Println(name.Value)
//	}
func Select(ctx context.Context, location, query string, opts ...Option) (model.Solutions, error) {
	exec, err := open(location, query, opts)
	if err != nil {
		return nil, err
	}
	solutions, err := exec.ExecSelect(ctx)
	if err != nil {
		_ = exec.Close() // Ignore close error during error handling
		return nil, err
	}
	return &closingSolutions{Solutions: solutions, exec: exec}, nil
}

// Construct runs CONSTRUCT queries over the table at location and returns
// the graph they build. query may hold several queries; later ones reuse
// the prefixes of the first.
func Construct(ctx context.Context, location, query string, opts ...Option) (*model.Graph, error) {
	exec, err := open(location, query, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = exec.Close() // The graph is complete, a close error changes nothing
	}()

	g := model.NewGraph()
	if err := exec.ExecGraph(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func open(location, query string, opts []Option) (*Execution, error) {
	queries, err := parser.Parse(query)
	if err != nil {
		return nil, err
	}
	src, format := SourceFromLocation(location)
	return NewExecution(src, format, queries, opts...)
}

// SourceFromLocation resolves a file path or file URL with optional
// fragment options into a Source and the Format to read it with.
func SourceFromLocation(location string) (Source, Format) {
	parsed := ParseSourceURL(location)
	path := filePathFromURL(parsed.RemainingURL)
	return NewFileSource(path), DetectFormat(path).WithOptions(parsed.Options)
}

// closingSolutions closes the execution together with the solutions.
type closingSolutions struct {
	model.Solutions
	exec *Execution
}

func (c *closingSolutions) Close() error {
	err := c.Solutions.Close()
	if closeErr := c.exec.Close(); err == nil {
		err = closeErr
	}
	return err
}
