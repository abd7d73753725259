package tablequery

import (
	"log/slog"
	"sync"

	"github.com/nao1215/tablequery/domain/model"
)

// LazyTable is a table over a streaming source. Nothing is read until the
// first question is asked; variables and emptiness are answered by opening
// one pass and peeking at its first row, and the row count is recorded by
// the first pass that runs to the end.
//
// Every Rows call returns an independent pass with its own position. The
// pass opened while peeking is handed to the first Rows call so the peeked
// row is not read twice. The table keeps a registry of the passes it handed
// out and closes all of them on Close.
//
// LazyTable is safe for concurrent use. A cursor belongs to one goroutine,
// except that closing the table stops every cursor still open; such a
// cursor returns false from Next and ErrTableClosed from Err.
type LazyTable struct {
	src    Source
	format Format
	logger *slog.Logger

	mu        sync.Mutex
	vars      []model.Var
	varsKnown bool
	empty     bool
	size      int
	sizeKnown bool
	pending   model.RowCursor
	cursors   map[*trackedCursor]struct{}
	passes    int
	closed    bool
}

var _ model.Table = (*LazyTable)(nil)

// NewLazyTable creates a table over src. The source is not opened until
// the table is first used.
func NewLazyTable(src Source, format Format, opts ...Option) *LazyTable {
	o := newOptions(opts)
	return &LazyTable{
		src:     src,
		format:  format,
		logger:  o.logger,
		cursors: make(map[*trackedCursor]struct{}),
	}
}

// Vars returns the table variables, ROWNUM last.
func (t *LazyTable) Vars() ([]model.Var, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.prepare(); err != nil {
		return nil, err
	}
	return append([]model.Var(nil), t.vars...), nil
}

// IsEmpty reports whether the source has no data rows. It reads at most
// one row.
func (t *LazyTable) IsEmpty() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.prepare(); err != nil {
		return false, err
	}
	return t.empty, nil
}

// Size returns the number of data rows. Unless a pass has already been
// read to the end, it reads one full pass to count them.
func (t *LazyTable) Size() (int, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrTableClosed
	}
	if err := t.prepare(); err != nil {
		t.mu.Unlock()
		return 0, err
	}
	if t.sizeKnown {
		size := t.size
		t.mu.Unlock()
		return size, nil
	}
	t.mu.Unlock()

	cursor, err := t.Rows()
	if err != nil {
		return 0, err
	}
	for cursor.Next() {
	}
	err = cursor.Err()
	if closeErr := cursor.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sizeKnown {
		return 0, ErrTableClosed
	}
	return t.size, nil
}

// Rows opens a new pass over the table.
func (t *LazyTable) Rows() (model.RowCursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTableClosed
	}
	if err := t.prepare(); err != nil {
		return nil, err
	}

	inner := t.pending
	t.pending = nil
	if inner == nil {
		var err error
		if inner, err = t.open(); err != nil {
			return nil, err
		}
	}
	cursor := &trackedCursor{table: t, inner: inner, vars: t.vars}
	t.cursors[cursor] = struct{}{}
	return cursor, nil
}

// Passes returns how many times the source has been opened.
func (t *LazyTable) Passes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passes
}

// OpenCursors returns how many passes handed out by Rows are still open.
func (t *LazyTable) OpenCursors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cursors)
}

// Close closes every open pass. Later calls do nothing.
func (t *LazyTable) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pending := t.pending
	t.pending = nil
	cursors := make([]*trackedCursor, 0, len(t.cursors))
	for c := range t.cursors {
		cursors = append(cursors, c)
	}
	clear(t.cursors)
	t.mu.Unlock()

	var firstErr error
	if pending != nil {
		firstErr = pending.Close()
	}
	for _, c := range cursors {
		if err := c.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.logger.Debug("closed lazy table", "source", t.src.Name(), "cursors", len(cursors))
	return firstErr
}

// prepare fills the variable and emptiness caches. The caller holds t.mu.
func (t *LazyTable) prepare() error {
	if t.varsKnown {
		return nil
	}
	if t.closed {
		return ErrTableClosed
	}

	cursor, err := t.open()
	if err != nil {
		return err
	}
	if !cursor.Next() {
		err := cursor.Err()
		closeErr := cursor.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return sourceError("close", t.src.Name(), closeErr)
		}
		t.vars = cursor.Vars()
		t.varsKnown = true
		t.empty = true
		t.size = 0
		t.sizeKnown = true
		return nil
	}

	t.vars = cursor.Vars()
	t.varsKnown = true
	t.pending = &primedCursor{RowCursor: cursor, first: cursor.Binding()}
	return nil
}

// open starts a new pass over the source. The caller holds t.mu.
func (t *LazyTable) open() (model.RowCursor, error) {
	cursor, err := t.format.OpenCursor(t.src)
	if err != nil {
		return nil, err
	}
	t.passes++
	t.logger.Debug("opened source pass", "source", t.src.Name(), "format", t.format.Type, "pass", t.passes)
	return cursor, nil
}

// finish is called by a cursor that reached the end of its pass.
func (t *LazyTable) finish(c *trackedCursor, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, c)
	if ok && !t.sizeKnown {
		t.size = c.rows
		t.sizeKnown = true
		t.logger.Debug("counted table rows", "source", t.src.Name(), "size", c.rows)
	}
}

// forget is called by a cursor closed before the end of its pass.
func (t *LazyTable) forget(c *trackedCursor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, c)
}

// trackedCursor forwards to a source pass and reports back to its table
// when the pass ends. mu lets the table stop the pass from another
// goroutine.
type trackedCursor struct {
	table *LazyTable
	vars  []model.Var

	mu    sync.Mutex
	inner model.RowCursor
	rows  int
	err   error
	done  bool
}

func (c *trackedCursor) Vars() []model.Var {
	return c.vars
}

func (c *trackedCursor) Next() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	if c.inner.Next() {
		c.rows++
		return true
	}
	c.done = true
	c.err = c.inner.Err()
	if closeErr := c.inner.Close(); c.err == nil && closeErr != nil {
		c.err = sourceError("close", c.table.src.Name(), closeErr)
	}
	c.table.finish(c, c.err == nil)
	return false
}

func (c *trackedCursor) Binding() model.Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	return c.inner.Binding()
}

func (c *trackedCursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *trackedCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.table.forget(c)
	c.done = true
	return c.inner.Close()
}

// release stops a pass that is still open when its table closes. The
// cursor then reports ErrTableClosed so the caller can tell the pass was
// cut short.
func (c *trackedCursor) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	c.err = ErrTableClosed
	return c.inner.Close()
}

// primedCursor replays a row that was read ahead before continuing with
// the rest of the pass.
type primedCursor struct {
	model.RowCursor
	first   model.Binding
	current model.Binding
	started bool
}

func (p *primedCursor) Next() bool {
	if !p.started {
		p.started = true
		p.current = p.first
		return true
	}
	if p.RowCursor.Next() {
		p.current = p.RowCursor.Binding()
		return true
	}
	p.current = nil
	return false
}

func (p *primedCursor) Binding() model.Binding {
	return p.current
}
