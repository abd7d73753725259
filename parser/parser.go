// Package parser reads query text into domain queries.
//
// The accepted language is the part of SPARQL 1.1 that table queries use:
// BASE and PREFIX declarations, SELECT [DISTINCT] with variables, * or
// (expression AS ?var), CONSTRUCT templates, FROM, a WHERE group with
// FILTER, BIND and nested groups, and LIMIT and OFFSET. A text may hold
// several queries one after the other; queries after the first inherit
// its BASE and PREFIX declarations.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/nao1215/tablequery/domain/model"
)

// Predefined errors
var (
	// ErrSyntax is returned when the query text does not parse
	ErrSyntax = errors.New("tablequery parser: syntax error")

	// ErrUnknownPrefix is returned for a prefixed name whose prefix is not declared
	ErrUnknownPrefix = errors.New("tablequery parser: unknown prefix")

	// ErrInvalidTerm is returned for a term that cannot be used where it appears
	ErrInvalidTerm = errors.New("tablequery parser: invalid term")

	// ErrEmptyQuery is returned when the text holds no query
	ErrEmptyQuery = errors.New("tablequery parser: no query found")
)

var (
	queryLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `#[^\n]*`},
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "IRIRef", Pattern: "<[^<>\"{}|^`\\\\\\x00-\\x20]*>"},
		{Name: "Var", Pattern: `[?$][A-Za-z0-9_]+`},
		{Name: "BlankNode", Pattern: `_:[A-Za-z0-9_\-]+`},
		{Name: "LangTag", Pattern: `@[A-Za-z]+(-[A-Za-z0-9]+)*`},
		{Name: "String", Pattern: `"""(?s:.*?)"""|'''(?s:.*?)'''|"(\\.|[^"\\\n])*"|'(\\.|[^'\\\n])*'`},
		{Name: "Double", Pattern: `(\d+\.\d*|\.\d+|\d+)[eE][+-]?\d+`},
		{Name: "Decimal", Pattern: `\d*\.\d+`},
		{Name: "Integer", Pattern: `\d+`},
		{Name: "PName", Pattern: `([A-Za-z][A-Za-z0-9_\-]*(\.[A-Za-z0-9_\-]+)*)?:([A-Za-z0-9_%]([A-Za-z0-9_\-%]|\.[A-Za-z0-9_\-%])*)?`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
		{Name: "Operator", Pattern: `\|\||&&|!=|<=|>=|\^\^|[=<>!+\-*/]`},
		{Name: "Punct", Pattern: `[{}().,;]`},
	})

	queryParser = participle.MustBuild[astFile](
		participle.Lexer(queryLexer),
		participle.CaseInsensitive("Ident"),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(3),
	)
)

// Parse parses one or more queries.
func Parse(text string) ([]*model.Query, error) {
	if strings.TrimSpace(stripComments(text)) == "" {
		return nil, ErrEmptyQuery
	}

	ast, err := queryParser.ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	queries := make([]*model.Query, 0, len(ast.Queries))
	var first *model.Query
	for i, aq := range ast.Queries {
		q, err := convertQuery(aq, first)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i+1, err)
		}
		if first == nil {
			first = q
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// ParseOne parses text that must hold exactly one query.
func ParseOne(text string) (*model.Query, error) {
	queries, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if len(queries) != 1 {
		return nil, fmt.Errorf("%w: expected one query, found %d", ErrSyntax, len(queries))
	}
	return queries[0], nil
}

func stripComments(text string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 && strings.TrimSpace(line[:i]) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
