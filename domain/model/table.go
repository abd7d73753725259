package model

// RowCursor is one forward-only pass over the rows of a table.
//
// Vars is fixed when the cursor is opened. Next advances to the next row and
// returns false once the pass is exhausted or failed; Err tells which.
// Binding returns the current row and must only be called after Next
// returned true. Close releases the pass and may be called more than once.
type RowCursor interface {
	Vars() []Var
	Next() bool
	Binding() Binding
	Err() error
	Close() error
}

// Solutions is the result of a SELECT query. It behaves like a RowCursor
// whose variables are the query projection.
type Solutions = RowCursor

// Table is a relation with a fixed variable list that can be iterated any
// number of times. Each Rows call returns a new, independently positioned
// cursor.
type Table interface {
	Vars() ([]Var, error)
	IsEmpty() (bool, error)
	Size() (int, error)
	Rows() (RowCursor, error)
	Close() error
}

// TripleIterator is a stream of triples produced by CONSTRUCT queries.
type TripleIterator interface {
	Next() bool
	Triple() Triple
	Err() error
	Close() error
}

// sliceTriples iterates over a fixed slice of triples.
type sliceTriples struct {
	triples []Triple
	pos     int
}

// NewSliceTriples returns a TripleIterator over triples.
func NewSliceTriples(triples []Triple) TripleIterator {
	return &sliceTriples{triples: triples, pos: -1}
}

func (s *sliceTriples) Next() bool {
	if s.pos+1 >= len(s.triples) {
		s.pos = len(s.triples)
		return false
	}
	s.pos++
	return true
}

func (s *sliceTriples) Triple() Triple {
	if s.pos < 0 || s.pos >= len(s.triples) {
		return Triple{}
	}
	return s.triples[s.pos]
}

func (s *sliceTriples) Err() error {
	return nil
}

func (s *sliceTriples) Close() error {
	s.pos = len(s.triples)
	return nil
}

// sliceCursor iterates over rows held in memory.
type sliceCursor struct {
	vars    []Var
	rows    []Binding
	pos     int
	current Binding
	closed  bool
}

// NewSliceCursor returns a RowCursor over rows. The rows are not copied and
// must not be modified while the cursor is in use.
func NewSliceCursor(vars []Var, rows []Binding) RowCursor {
	return &sliceCursor{vars: vars, rows: rows}
}

func (s *sliceCursor) Vars() []Var {
	return s.vars
}

func (s *sliceCursor) Next() bool {
	if s.closed || s.pos >= len(s.rows) {
		s.current = nil
		return false
	}
	s.current = s.rows[s.pos]
	s.pos++
	return true
}

func (s *sliceCursor) Binding() Binding {
	return s.current
}

func (s *sliceCursor) Err() error {
	return nil
}

func (s *sliceCursor) Close() error {
	s.closed = true
	s.current = nil
	return nil
}
