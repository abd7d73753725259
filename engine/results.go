package engine

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nao1215/tablequery/domain/model"
)

// solutions reads the rows of a compiled statement as bindings. It owns
// the database the statement runs on.
type solutions struct {
	db      *sql.DB
	rows    *sql.Rows
	plan    *plan
	current model.Binding
	err     error
	closed  bool
}

func newSolutions(db *sql.DB, rows *sql.Rows, p *plan) *solutions {
	return &solutions{db: db, rows: rows, plan: p}
}

func (s *solutions) Vars() []model.Var {
	return s.plan.vars
}

func (s *solutions) Next() bool {
	s.current = nil
	if s.closed || s.err != nil {
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.err = fmt.Errorf("failed to read solutions: %w", err)
		}
		return false
	}

	values := make([]any, len(s.plan.vars))
	targets := make([]any, len(values))
	for i := range values {
		targets[i] = &values[i]
	}
	if err := s.rows.Scan(targets...); err != nil {
		s.err = fmt.Errorf("failed to scan solution: %w", err)
		return false
	}

	binding := make(model.Binding, len(values))
	for i, v := range s.plan.vars {
		if n, ok := decodeValue(values[i], s.plan.types[i]); ok {
			binding[v] = n
		}
	}
	s.current = binding
	return true
}

func (s *solutions) Binding() model.Binding {
	return s.current
}

func (s *solutions) Err() error {
	return s.err
}

func (s *solutions) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.current = nil
	err := s.rows.Close()
	if closeErr := s.db.Close(); err == nil {
		err = closeErr
	}
	return err
}

// decodeValue turns a result column value into a term of type t. NULL
// decodes to no term.
func decodeValue(v any, t valueType) (model.Node, bool) {
	if v == nil {
		return model.Node{}, false
	}
	switch t.kind {
	case kindIRI:
		s, ok := lexicalForm(v)
		if !ok || !validIRI(s) {
			return model.Node{}, false
		}
		return model.NewIRI(s), true
	case kindInteger:
		switch x := v.(type) {
		case int64:
			return model.NewTypedLiteral(strconv.FormatInt(x, 10), model.XSDInteger), true
		case float64:
			return model.NewTypedLiteral(strconv.FormatFloat(x, 'f', 0, 64), model.XSDInteger), true
		}
	case kindDecimal:
		if f, ok := number(v); ok {
			return model.NewTypedLiteral(formatDecimal(f), model.XSDDecimal), true
		}
	case kindDouble:
		switch x := v.(type) {
		case int64:
			return model.NewTypedLiteral(formatDouble(float64(x)), model.XSDDouble), true
		case float64:
			return model.NewTypedLiteral(formatDouble(x), model.XSDDouble), true
		}
	case kindBoolean:
		if x, ok := v.(int64); ok {
			return model.NewTypedLiteral(strconv.FormatBool(x != 0), model.XSDBoolean), true
		}
	case kindLang:
		if s, ok := lexicalForm(v); ok {
			return model.NewLangLiteral(s, t.lang), true
		}
	case kindTyped:
		if s, ok := lexicalForm(v); ok {
			return model.NewTypedLiteral(s, t.datatype), true
		}
	default:
		if s, ok := lexicalForm(v); ok {
			return model.NewLiteral(s), true
		}
	}
	return model.Node{}, false
}

func lexicalForm(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return "", false
	}
}

// constructIterator instantiates a CONSTRUCT template once per solution.
type constructIterator struct {
	template  []model.TriplePattern
	solutions *solutions
	pending   []model.Triple
	current   model.Triple
	closed    bool
}

func newConstructIterator(template []model.TriplePattern, s *solutions) *constructIterator {
	return &constructIterator{template: template, solutions: s}
}

func (it *constructIterator) Next() bool {
	for len(it.pending) == 0 {
		if it.closed || !it.solutions.Next() {
			it.current = model.Triple{}
			return false
		}
		it.pending = instantiate(it.template, it.solutions.Binding())
	}
	it.current = it.pending[0]
	it.pending = it.pending[1:]
	return true
}

func (it *constructIterator) Triple() model.Triple {
	return it.current
}

func (it *constructIterator) Err() error {
	return it.solutions.Err()
}

func (it *constructIterator) Close() error {
	it.closed = true
	it.pending = nil
	return it.solutions.Close()
}

// instantiate fills the template with b. Blank nodes of the template get
// labels that are fresh for every solution; triples with an unbound
// variable or a term in an invalid position are left out.
func instantiate(template []model.TriplePattern, b model.Binding) []model.Triple {
	blanks := make(map[string]model.Node)
	resolve := func(t model.Term) (model.Node, bool) {
		if t.IsVar() {
			return b.Get(t.Var)
		}
		if !t.Node.IsBlank() {
			return t.Node, true
		}
		n, ok := blanks[t.Node.Value]
		if !ok {
			n = model.NewBlank("b" + strings.ReplaceAll(uuid.NewString(), "-", ""))
			blanks[t.Node.Value] = n
		}
		return n, true
	}

	triples := make([]model.Triple, 0, len(template))
	for _, tp := range template {
		s, okS := resolve(tp.S)
		p, okP := resolve(tp.P)
		o, okO := resolve(tp.O)
		if !okS || !okP || !okO {
			continue
		}
		triple := model.Triple{S: s, P: p, O: o}
		if triple.Valid() {
			triples = append(triples, triple)
		}
	}
	return triples
}
