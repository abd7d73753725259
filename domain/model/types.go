// Package model provides domain model for tablequery
package model

import (
	"strings"
)

// XML Schema and RDF vocabulary used by the engine
const (
	// XSDNamespace is the XML Schema datatype namespace
	XSDNamespace = "http://www.w3.org/2001/XMLSchema#"
	// XSDString is the xsd:string datatype IRI
	XSDString = XSDNamespace + "string"
	// XSDInteger is the xsd:integer datatype IRI
	XSDInteger = XSDNamespace + "integer"
	// XSDDecimal is the xsd:decimal datatype IRI
	XSDDecimal = XSDNamespace + "decimal"
	// XSDDouble is the xsd:double datatype IRI
	XSDDouble = XSDNamespace + "double"
	// XSDBoolean is the xsd:boolean datatype IRI
	XSDBoolean = XSDNamespace + "boolean"
	// RDFType is the rdf:type property IRI
	RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// Var is a query variable. The name is stored without the leading '?'.
type Var string

// RowNum is the pseudo-variable holding the 1-based row number of a table row.
const RowNum Var = "ROWNUM"

// Name returns the variable name without '?'.
func (v Var) Name() string {
	return string(v)
}

// String returns the variable in query syntax.
func (v Var) String() string {
	return "?" + string(v)
}

// NodeKind tells which kind of RDF term a Node is.
type NodeKind int

const (
	// KindInvalid is the zero value; it never appears in a binding
	KindInvalid NodeKind = iota
	// KindIRI is an IRI reference
	KindIRI
	// KindBlank is a blank node
	KindBlank
	// KindLiteral is a literal, optionally typed or language tagged
	KindLiteral
)

// Node is an RDF term.
type Node struct {
	Kind     NodeKind
	Value    string // IRI, blank node label or lexical form
	Datatype string // datatype IRI for typed literals
	Lang     string // language tag for tagged literals
}

// NewIRI creates an IRI node.
func NewIRI(iri string) Node {
	return Node{Kind: KindIRI, Value: iri}
}

// NewBlank creates a blank node with the given label.
func NewBlank(label string) Node {
	return Node{Kind: KindBlank, Value: label}
}

// NewLiteral creates a plain literal.
func NewLiteral(lexical string) Node {
	return Node{Kind: KindLiteral, Value: lexical}
}

// NewTypedLiteral creates a literal with a datatype. xsd:string collapses
// into a plain literal.
func NewTypedLiteral(lexical, datatype string) Node {
	if datatype == XSDString {
		datatype = ""
	}
	return Node{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

// NewLangLiteral creates a language-tagged literal.
func NewLangLiteral(lexical, lang string) Node {
	return Node{Kind: KindLiteral, Value: lexical, Lang: strings.ToLower(lang)}
}

// IsZero reports whether n is the zero Node.
func (n Node) IsZero() bool {
	return n.Kind == KindInvalid
}

// IsIRI reports whether n is an IRI.
func (n Node) IsIRI() bool {
	return n.Kind == KindIRI
}

// IsBlank reports whether n is a blank node.
func (n Node) IsBlank() bool {
	return n.Kind == KindBlank
}

// IsLiteral reports whether n is a literal.
func (n Node) IsLiteral() bool {
	return n.Kind == KindLiteral
}

// String returns the N-Triples form of the node.
func (n Node) String() string {
	switch n.Kind {
	case KindIRI:
		return "<" + n.Value + ">"
	case KindBlank:
		return "_:" + n.Value
	case KindLiteral:
		s := `"` + escapeLiteral(n.Value) + `"`
		if n.Lang != "" {
			return s + "@" + n.Lang
		}
		if n.Datatype != "" {
			return s + "^^<" + n.Datatype + ">"
		}
		return s
	default:
		return ""
	}
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// Binding maps variables to the terms bound to them. A variable missing from
// the map is unbound.
type Binding map[Var]Node

// Get returns the term bound to v.
func (b Binding) Get(v Var) (Node, bool) {
	n, ok := b[v]
	return n, ok
}

// Triple is an RDF statement.
type Triple struct {
	S Node
	P Node
	O Node
}

// String returns the triple as an N-Triples line without the newline.
func (t Triple) String() string {
	return t.S.String() + " " + t.P.String() + " " + t.O.String() + " ."
}

// Valid reports whether the triple is well formed: the subject is an IRI or
// blank node, the predicate is an IRI and the object is set.
func (t Triple) Valid() bool {
	return (t.S.IsIRI() || t.S.IsBlank()) && t.P.IsIRI() && !t.O.IsZero()
}

// Graph is an insertion-ordered set of triples.
type Graph struct {
	triples []Triple
	index   map[Triple]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[Triple]struct{})}
}

// Add adds t and reports whether it was not present yet.
func (g *Graph) Add(t Triple) bool {
	if _, ok := g.index[t]; ok {
		return false
	}
	g.index[t] = struct{}{}
	g.triples = append(g.triples, t)
	return true
}

// Contains reports whether t is in the graph.
func (g *Graph) Contains(t Triple) bool {
	_, ok := g.index[t]
	return ok
}

// Len returns the number of triples.
func (g *Graph) Len() int {
	return len(g.triples)
}

// Triples returns the triples in insertion order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}
