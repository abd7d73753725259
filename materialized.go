package tablequery

import (
	"sync"

	"github.com/nao1215/tablequery/domain/model"
)

// MaterializedTable holds every row of its source in memory. It is used
// for formats that cannot be streamed; the rows are read once, when the
// table is created, and never change afterwards.
type MaterializedTable struct {
	vars []model.Var
	size int

	mu     sync.Mutex
	rows   []model.Binding
	closed bool
}

var _ model.Table = (*MaterializedTable)(nil)

// NewMaterializedTable reads src to the end and returns a table over its
// rows. WithMemoryLimit bounds the memory used while reading.
func NewMaterializedTable(src Source, format Format, opts ...Option) (*MaterializedTable, error) {
	o := newOptions(opts)
	cursor, err := format.OpenCursor(src)
	if err != nil {
		return nil, err
	}
	table, err := materialize(cursor, o, src.Name())
	if closeErr := cursor.Close(); err == nil && closeErr != nil {
		err = sourceError("close", src.Name(), closeErr)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Debug("materialized table", "source", src.Name(), "format", format.Type, "rows", table.size)
	return table, nil
}

// NewMaterializedTableFromCursor drains cursor into a new table. The
// cursor is left open.
func NewMaterializedTableFromCursor(cursor model.RowCursor, opts ...Option) (*MaterializedTable, error) {
	return materialize(cursor, newOptions(opts), "")
}

func materialize(cursor model.RowCursor, o *options, name string) (*MaterializedTable, error) {
	var (
		rows   []model.Binding
		warned bool
	)
	for cursor.Next() {
		rows = append(rows, cursor.Binding())
		status, err := o.memoryLimit.checkBuffered(int64(len(rows)), "table buffering")
		if err != nil {
			return nil, NewErrorContext("materialize", name).Error(err)
		}
		if status == MemoryStatusWarning && !warned {
			warned = true
			o.logger.Warn("table buffering is close to the memory limit",
				"source", name,
				"rows", len(rows),
				"limit_mb", o.memoryLimit.maxMemoryMB)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return &MaterializedTable{
		vars: append([]model.Var(nil), cursor.Vars()...),
		size: len(rows),
		rows: rows,
	}, nil
}

// Vars returns the table variables.
func (t *MaterializedTable) Vars() ([]model.Var, error) {
	return append([]model.Var(nil), t.vars...), nil
}

// IsEmpty reports whether the table has no rows.
func (t *MaterializedTable) IsEmpty() (bool, error) {
	return t.size == 0, nil
}

// Size returns the number of rows.
func (t *MaterializedTable) Size() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTableClosed
	}
	return t.size, nil
}

// Rows returns a new cursor over the buffered rows.
func (t *MaterializedTable) Rows() (model.RowCursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTableClosed
	}
	return model.NewSliceCursor(append([]model.Var(nil), t.vars...), t.rows), nil
}

// Close releases the buffered rows. Cursors already handed out keep
// working over the rows they captured.
func (t *MaterializedTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.rows = nil
	return nil
}
