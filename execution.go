package tablequery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/tablequery/domain/model"
)

// Engine evaluates queries whose pattern has been rewritten to read a table.
type Engine interface {
	// Select evaluates a SELECT query.
	Select(ctx context.Context, q *model.Query) (model.Solutions, error)
	// Construct evaluates a CONSTRUCT query and streams the triples it builds.
	Construct(ctx context.Context, q *model.Query) (model.TripleIterator, error)
}

// Execution runs one or more queries over one table source.
//
// The table is created on the first Exec call, as a LazyTable when the
// format supports streaming and as a MaterializedTable otherwise, and is
// shared by every query of the execution. Each query is rewritten to read
// the table the first time it runs.
type Execution struct {
	src     Source
	format  Format
	queries []*model.Query
	engine  Engine
	logger  *slog.Logger
	opts    []Option

	mu        sync.Mutex
	table     model.Table
	rewritten map[*model.Query]bool
	closed    bool
}

// NewExecution prepares the execution of queries over src.
//
// When format leaves the header undecided, the first query decides: an
// OFFSET of exactly 1 means the first row holds column names, and the
// offset is reset to 0 because that row is no longer data. Any other
// offset means there is no header row.
func NewExecution(src Source, format Format, queries []*model.Query, opts ...Option) (*Execution, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	if src == nil {
		return nil, ErrNoSource
	}
	o := newOptions(opts)

	if format.Header == HeaderUnknown {
		first := queries[0]
		if first.Offset == 1 {
			format = format.WithHeader(HeaderPresent)
			first.Offset = 0
		} else {
			format = format.WithHeader(HeaderAbsent)
		}
		o.logger.Debug("inferred header row", "source", src.Name(), "header", format.Header)
	}

	return &Execution{
		src:       src,
		format:    format,
		queries:   queries,
		engine:    o.engine,
		logger:    o.logger,
		opts:      opts,
		rewritten: make(map[*model.Query]bool, len(queries)),
	}, nil
}

// Format returns the format with the header decision applied.
func (e *Execution) Format() Format {
	return e.format
}

// Queries returns the queries of the execution.
func (e *Execution) Queries() []*model.Query {
	return e.queries
}

// FirstQuery returns the first query of the execution.
func (e *Execution) FirstQuery() *model.Query {
	return e.queries[0]
}

// ExecGraph runs every query as a CONSTRUCT query and adds the triples to g.
func (e *Execution) ExecGraph(ctx context.Context, g *model.Graph) error {
	triples, err := e.ExecTriples(ctx)
	if err != nil {
		return err
	}
	for triples.Next() {
		g.Add(triples.Triple())
	}
	err = triples.Err()
	if closeErr := triples.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ExecTriples runs every query as a CONSTRUCT query and returns their
// triples one query after the other. A query is only evaluated once the
// triples of the previous ones have been consumed.
func (e *Execution) ExecTriples(ctx context.Context) (model.TripleIterator, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	for i, q := range e.queries {
		if q.Type != model.QueryTypeConstruct {
			return nil, fmt.Errorf("%w: query %d is a %s query, expected CONSTRUCT", ErrUsage, i+1, q.Type)
		}
	}
	return &chainedTriples{ctx: ctx, exec: e}, nil
}

// ExecSelect runs the first query as a SELECT query.
func (e *Execution) ExecSelect(ctx context.Context) (model.Solutions, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	q := e.FirstQuery()
	if !q.IsSelectType() {
		return nil, fmt.Errorf("%w: query is a %s query, expected SELECT", ErrUsage, q.Type)
	}
	if err := e.rewrite(q); err != nil {
		return nil, err
	}
	return e.engine.Select(ctx, q)
}

// Rewrite injects the table into every query without evaluating them.
// Only the table's variables are read.
func (e *Execution) Rewrite() error {
	if err := e.init(); err != nil {
		return err
	}
	for _, q := range e.queries {
		if err := e.rewrite(q); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the table. Exec calls after Close fail with
// ErrExecutionClosed.
func (e *Execution) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.table == nil {
		return nil
	}
	return e.table.Close()
}

// init creates the table on first use.
func (e *Execution) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutionClosed
	}
	if e.table != nil {
		return nil
	}

	if e.format.SupportsStreaming() {
		e.table = NewLazyTable(e.src, e.format, e.opts...)
		e.logger.Debug("created lazy table", "source", e.src.Name(), "format", e.format.Type)
		return nil
	}
	table, err := NewMaterializedTable(e.src, e.format, e.opts...)
	if err != nil {
		return err
	}
	e.table = table
	return nil
}

// rewrite injects the table into q unless that was already done.
func (e *Execution) rewrite(q *model.Query) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutionClosed
	}
	if e.rewritten[q] {
		return nil
	}
	if err := InjectTable(q, e.table); err != nil {
		return err
	}
	e.rewritten[q] = true
	e.logger.Debug("rewrote query", "type", q.Type, "vars", len(q.ResultVars()))
	return nil
}

// chainedTriples evaluates the queries of an execution one at a time.
type chainedTriples struct {
	ctx     context.Context
	exec    *Execution
	next    int
	current model.TripleIterator
	err     error
	done    bool
}

func (c *chainedTriples) Next() bool {
	for !c.done {
		if c.current != nil {
			if c.current.Next() {
				return true
			}
			c.err = c.current.Err()
			if closeErr := c.current.Close(); c.err == nil {
				c.err = closeErr
			}
			c.current = nil
			if c.err != nil {
				c.done = true
				return false
			}
		}

		if c.next >= len(c.exec.queries) {
			c.done = true
			return false
		}
		if err := c.ctx.Err(); err != nil {
			c.err = err
			c.done = true
			return false
		}

		q := c.exec.queries[c.next]
		c.next++
		if err := c.exec.rewrite(q); err != nil {
			c.err = err
			c.done = true
			return false
		}
		triples, err := c.exec.engine.Construct(c.ctx, q)
		if err != nil {
			c.err = err
			c.done = true
			return false
		}
		c.current = triples
	}
	return false
}

func (c *chainedTriples) Triple() model.Triple {
	if c.current == nil {
		return model.Triple{}
	}
	return c.current.Triple()
}

func (c *chainedTriples) Err() error {
	return c.err
}

func (c *chainedTriples) Close() error {
	c.done = true
	if c.current == nil {
		return nil
	}
	err := c.current.Close()
	c.current = nil
	return err
}
