package model

import (
	"strings"
	"testing"
)

func TestInScopeVars(t *testing.T) {
	t.Parallel()

	pattern := &Group{Elements: []Element{
		&Data{Vars: []Var{"a", "b"}},
		&Bind{Expr: &VarExpr{Var: "a"}, Var: "c"},
		&Filter{Expr: &VarExpr{Var: "z"}},
		&Group{Elements: []Element{&Bind{Expr: &VarExpr{Var: "b"}, Var: "a"}}},
	}}

	got := InScopeVars(pattern)
	expected := []Var{"a", "b", "c"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, got)
		}
	}

	if vars := InScopeVars(nil); len(vars) != 0 {
		t.Errorf("expected no vars for nil pattern, got %v", vars)
	}
}

func TestQuery_ExpandStar(t *testing.T) {
	t.Parallel()

	q := NewQuery(QueryTypeSelect)
	q.Star = true
	q.Pattern = &Group{Elements: []Element{&Data{Vars: []Var{"x", "y"}}}}

	if !q.IsQueryResultStar() {
		t.Fatal("expected SELECT * query")
	}
	q.ExpandStar()

	if q.Star {
		t.Error("expected star to be cleared")
	}
	if len(q.Projection) != 2 || q.Projection[0] != "x" || q.Projection[1] != "y" {
		t.Errorf("unexpected projection %v", q.Projection)
	}
}

func TestQuery_TemplateVars(t *testing.T) {
	t.Parallel()

	q := NewQuery(QueryTypeConstruct)
	q.Template = []TriplePattern{
		{S: VarTerm("s"), P: NodeTerm(NewIRI("http://example.com/p")), O: VarTerm("o")},
		{S: VarTerm("s"), P: NodeTerm(NewIRI(RDFType)), O: VarTerm("t")},
	}

	got := q.TemplateVars()
	if len(got) != 3 || got[0] != "s" || got[1] != "o" || got[2] != "t" {
		t.Errorf("unexpected template vars %v", got)
	}
	if vars := q.ResultVars(); len(vars) != 3 {
		t.Errorf("expected construct result vars to be template vars, got %v", vars)
	}
}

func TestQuery_ExpandPrefixed(t *testing.T) {
	t.Parallel()

	q := NewQuery(QueryTypeSelect)
	q.Prefixes = []Prefix{{Name: "ex", IRI: "http://example.com/"}}

	iri, ok := q.ExpandPrefixed("ex:thing")
	if !ok || iri != "http://example.com/thing" {
		t.Errorf("unexpected expansion %q %v", iri, ok)
	}
	if _, ok := q.ExpandPrefixed("foaf:name"); ok {
		t.Error("expected unknown prefix to fail")
	}
}

func TestQuery_String(t *testing.T) {
	t.Parallel()

	q := NewQuery(QueryTypeSelect)
	q.Prefixes = []Prefix{{Name: "ex", IRI: "http://example.com/"}}
	q.Projection = []Var{"a"}
	q.Offset = 1
	q.Pattern = &Group{Elements: []Element{
		&Filter{Expr: &BinaryExpr{Op: "=", Left: &VarExpr{Var: "a"}, Right: &TermExpr{Node: NewLiteral("x")}}},
	}}

	s := q.String()
	for _, want := range []string{"PREFIX ex: <http://example.com/>", "SELECT ?a", `FILTER((?a = "x"))`, "OFFSET 1"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %s", want, s)
		}
	}
	if strings.Contains(s, "LIMIT") {
		t.Errorf("unset limit must not be rendered: %s", s)
	}
}
