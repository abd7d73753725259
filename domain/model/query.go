package model

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryType is the query form.
type QueryType int

const (
	// QueryTypeSelect is a SELECT query
	QueryTypeSelect QueryType = iota
	// QueryTypeConstruct is a CONSTRUCT query
	QueryTypeConstruct
)

// String returns the query form keyword.
func (qt QueryType) String() string {
	switch qt {
	case QueryTypeConstruct:
		return "CONSTRUCT"
	default:
		return "SELECT"
	}
}

// NoOffset and NoLimit mark an unset OFFSET or LIMIT.
const (
	NoOffset int64 = -1
	NoLimit  int64 = -1
)

// Prefix is a PREFIX declaration.
type Prefix struct {
	Name string
	IRI  string
}

// Query is a parsed query. The rewriter and the engine work on this value
// directly; it is mutated in place when a table is injected.
type Query struct {
	Type     QueryType
	Base     string
	Prefixes []Prefix
	// From lists the FROM IRIs, used to locate the input table.
	From       []string
	Distinct   bool
	Star       bool
	Projection []Var
	Template   []TriplePattern
	Pattern    Element
	Offset     int64
	Limit      int64
}

// NewQuery creates an empty query of the given type with an empty group as
// its pattern.
func NewQuery(qt QueryType) *Query {
	return &Query{
		Type:    qt,
		Pattern: &Group{},
		Offset:  NoOffset,
		Limit:   NoLimit,
	}
}

// IsSelectType reports whether q is a SELECT query.
func (q *Query) IsSelectType() bool {
	return q.Type == QueryTypeSelect
}

// IsQueryResultStar reports whether q is SELECT *.
func (q *Query) IsQueryResultStar() bool {
	return q.IsSelectType() && q.Star
}

// AddResultVar appends v to the projection unless it is already there.
func (q *Query) AddResultVar(v Var) {
	for _, p := range q.Projection {
		if p == v {
			return
		}
	}
	q.Projection = append(q.Projection, v)
}

// ExpandStar replaces the * projection by the variables in scope of the
// query pattern.
func (q *Query) ExpandStar() {
	q.Projection = InScopeVars(q.Pattern)
	q.Star = false
}

// ResultVars returns the variables a solution of q binds: the projection for
// SELECT, the template variables for CONSTRUCT.
func (q *Query) ResultVars() []Var {
	if q.Type == QueryTypeConstruct {
		return q.TemplateVars()
	}
	if q.Star {
		return InScopeVars(q.Pattern)
	}
	return q.Projection
}

// TemplateVars returns the variables used in the CONSTRUCT template in order
// of first use.
func (q *Query) TemplateVars() []Var {
	var vars []Var
	seen := make(map[Var]bool)
	for _, tp := range q.Template {
		for _, term := range []Term{tp.S, tp.P, tp.O} {
			if term.IsVar() && !seen[term.Var] {
				seen[term.Var] = true
				vars = append(vars, term.Var)
			}
		}
	}
	return vars
}

// ExpandPrefixed resolves a prefixed name against the query prologue.
func (q *Query) ExpandPrefixed(pname string) (string, bool) {
	name, local, ok := strings.Cut(pname, ":")
	if !ok {
		return "", false
	}
	for _, p := range q.Prefixes {
		if p.Name == name {
			return p.IRI + local, true
		}
	}
	return "", false
}

// String renders q in query syntax. Injected tables are rendered by their
// variable list only.
func (q *Query) String() string {
	var b strings.Builder
	if q.Base != "" {
		fmt.Fprintf(&b, "BASE <%s>\n", q.Base)
	}
	for _, p := range q.Prefixes {
		fmt.Fprintf(&b, "PREFIX %s: <%s>\n", p.Name, p.IRI)
	}
	b.WriteString(q.Type.String())
	switch q.Type {
	case QueryTypeConstruct:
		b.WriteString(" {\n")
		for _, tp := range q.Template {
			b.WriteString("  " + tp.String() + "\n")
		}
		b.WriteString("}")
	default:
		if q.Distinct {
			b.WriteString(" DISTINCT")
		}
		if q.Star {
			b.WriteString(" *")
		}
		for _, v := range q.Projection {
			b.WriteString(" " + v.String())
		}
	}
	for _, from := range q.From {
		fmt.Fprintf(&b, "\nFROM <%s>", from)
	}
	b.WriteString("\nWHERE ")
	if q.Pattern == nil {
		b.WriteString("{}")
	} else {
		b.WriteString(q.Pattern.String())
	}
	if q.Limit != NoLimit {
		b.WriteString("\nLIMIT " + strconv.FormatInt(q.Limit, 10))
	}
	if q.Offset != NoOffset {
		b.WriteString("\nOFFSET " + strconv.FormatInt(q.Offset, 10))
	}
	b.WriteString("\n")
	return b.String()
}

// Term is a position in a triple pattern: either a variable or a fixed node.
type Term struct {
	Var  Var
	Node Node
}

// VarTerm creates a variable term.
func VarTerm(v Var) Term {
	return Term{Var: v}
}

// NodeTerm creates a fixed term.
func NodeTerm(n Node) Term {
	return Term{Node: n}
}

// IsVar reports whether t is a variable.
func (t Term) IsVar() bool {
	return t.Var != ""
}

// String renders the term.
func (t Term) String() string {
	if t.IsVar() {
		return t.Var.String()
	}
	return t.Node.String()
}

// TriplePattern is a CONSTRUCT template triple.
type TriplePattern struct {
	S Term
	P Term
	O Term
}

// String renders the pattern.
func (tp TriplePattern) String() string {
	return tp.S.String() + " " + tp.P.String() + " " + tp.O.String() + " ."
}

// Element is a graph pattern element. Implementations live in this package.
type Element interface {
	element()
	String() string
}

// Group is a group graph pattern { ... }.
type Group struct {
	Elements []Element
}

// AddElement appends e to the group.
func (g *Group) AddElement(e Element) {
	g.Elements = append(g.Elements, e)
}

func (*Group) element() {}

func (g *Group) String() string {
	parts := make([]string, 0, len(g.Elements))
	for _, e := range g.Elements {
		parts = append(parts, e.String())
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// Data is an inline bound-data element. Its rows come from Table and only
// the variables listed in Vars are visible to the query.
type Data struct {
	Vars  []Var
	Table Table
}

// AddVar makes v visible in the data element.
func (d *Data) AddVar(v Var) {
	for _, existing := range d.Vars {
		if existing == v {
			return
		}
	}
	d.Vars = append(d.Vars, v)
}

func (*Data) element() {}

func (d *Data) String() string {
	vars := make([]string, 0, len(d.Vars))
	for _, v := range d.Vars {
		vars = append(vars, v.String())
	}
	return "VALUES (" + strings.Join(vars, " ") + ") { ... }"
}

// Filter is a FILTER constraint.
type Filter struct {
	Expr Expr
}

func (*Filter) element() {}

func (f *Filter) String() string {
	return "FILTER(" + f.Expr.String() + ")"
}

// Bind is a BIND(expr AS ?var) assignment.
type Bind struct {
	Expr Expr
	Var  Var
}

func (*Bind) element() {}

func (b *Bind) String() string {
	return "BIND(" + b.Expr.String() + " AS " + b.Var.String() + ")"
}

// InScopeVars returns the variables bound by e, in order of first appearance.
func InScopeVars(e Element) []Var {
	var vars []Var
	seen := make(map[Var]bool)
	var walk func(Element)
	walk = func(e Element) {
		switch el := e.(type) {
		case *Group:
			for _, child := range el.Elements {
				walk(child)
			}
		case *Data:
			for _, v := range el.Vars {
				if !seen[v] {
					seen[v] = true
					vars = append(vars, v)
				}
			}
		case *Bind:
			if !seen[el.Var] {
				seen[el.Var] = true
				vars = append(vars, el.Var)
			}
		}
	}
	if e != nil {
		walk(e)
	}
	return vars
}

// Expr is a FILTER or BIND expression. Implementations live in this package.
type Expr interface {
	expr()
	String() string
}

// VarExpr references a variable.
type VarExpr struct {
	Var Var
}

func (*VarExpr) expr() {}

func (e *VarExpr) String() string {
	return e.Var.String()
}

// TermExpr is a constant term.
type TermExpr struct {
	Node Node
}

func (*TermExpr) expr() {}

func (e *TermExpr) String() string {
	return e.Node.String()
}

// UnaryExpr is a prefix operator: "!", "-" or "+".
type UnaryExpr struct {
	Op string
	X  Expr
}

func (*UnaryExpr) expr() {}

func (e *UnaryExpr) String() string {
	return e.Op + e.X.String()
}

// BinaryExpr is an infix operator: "||", "&&", "=", "!=", "<", ">", "<=",
// ">=", "+", "-", "*" or "/".
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (*BinaryExpr) expr() {}

func (e *BinaryExpr) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// CallExpr is a function call. Name is the upper-cased keyword for built-in
// functions and the full IRI for casts such as xsd:integer.
type CallExpr struct {
	Name string
	Args []Expr
}

func (*CallExpr) expr() {}

func (e *CallExpr) String() string {
	args := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, a.String())
	}
	name := e.Name
	if strings.Contains(name, ":") {
		name = "<" + name + ">"
	}
	return name + "(" + strings.Join(args, ", ") + ")"
}
