package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/tablequery/domain/model"
)

const rdfLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"

// kind is the static type of a compiled expression or column.
type kind int

const (
	kindString kind = iota
	kindLang
	kindTyped
	kindInteger
	kindDecimal
	kindDouble
	kindBoolean
	kindIRI
)

// valueType is a kind plus the datatype or language tag it carries.
type valueType struct {
	kind     kind
	datatype string
	lang     string
}

var (
	typeString  = valueType{kind: kindString}
	typeInteger = valueType{kind: kindInteger}
	typeDecimal = valueType{kind: kindDecimal}
	typeDouble  = valueType{kind: kindDouble}
	typeBoolean = valueType{kind: kindBoolean}
	typeIRI     = valueType{kind: kindIRI}
)

func (t valueType) numeric() bool {
	return t.kind == kindInteger || t.kind == kindDecimal || t.kind == kindDouble
}

func (t valueType) stringLike() bool {
	return t.kind == kindString || t.kind == kindLang
}

func (t valueType) literal() bool {
	return t.kind != kindIRI
}

// datatypeIRI returns the datatype a literal of this type carries.
func (t valueType) datatypeIRI() string {
	switch t.kind {
	case kindLang:
		return rdfLangString
	case kindTyped:
		return t.datatype
	case kindInteger:
		return model.XSDInteger
	case kindDecimal:
		return model.XSDDecimal
	case kindDouble:
		return model.XSDDouble
	case kindBoolean:
		return model.XSDBoolean
	default:
		return model.XSDString
	}
}

// typeOfDatatype maps a datatype IRI to the type of its literals.
func typeOfDatatype(datatype string) valueType {
	switch datatype {
	case "", model.XSDString:
		return typeString
	case model.XSDInteger:
		return typeInteger
	case model.XSDDecimal:
		return typeDecimal
	case model.XSDDouble:
		return typeDouble
	case model.XSDBoolean:
		return typeBoolean
	default:
		return valueType{kind: kindTyped, datatype: datatype}
	}
}

// scope holds the variables bound at some point of a pattern, in order.
type scope struct {
	order []model.Var
	types map[model.Var]valueType
}

func newScope() *scope {
	return &scope{types: make(map[model.Var]valueType)}
}

func (s *scope) add(v model.Var, t valueType) {
	if _, ok := s.types[v]; !ok {
		s.order = append(s.order, v)
	}
	s.types[v] = t
}

func (s *scope) lookup(v model.Var) (valueType, bool) {
	t, ok := s.types[v]
	return t, ok
}

func (s *scope) clone() *scope {
	c := newScope()
	for _, v := range s.order {
		c.add(v, s.types[v])
	}
	return c
}

// compiled is an expression translated to SQL.
type compiled struct {
	sql string
	typ valueType
}

var sqlNull = compiled{sql: "NULL", typ: typeString}

// expr translates e to an SQL expression over the columns of sc.
func (c *compiler) expr(e model.Expr, sc *scope) (compiled, error) {
	switch x := e.(type) {
	case *model.VarExpr:
		t, ok := sc.lookup(x.Var)
		if !ok {
			return sqlNull, nil
		}
		return compiled{sql: column(x.Var), typ: t}, nil
	case *model.TermExpr:
		return c.constant(x.Node)
	case *model.UnaryExpr:
		return c.unary(x, sc)
	case *model.BinaryExpr:
		return c.binary(x, sc)
	case *model.CallExpr:
		return c.call(x, sc)
	default:
		return sqlNull, fmt.Errorf("%w: expression %T", ErrUnsupported, e)
	}
}

// constant passes n as a statement parameter.
func (c *compiler) constant(n model.Node) (compiled, error) {
	switch n.Kind {
	case model.KindIRI:
		return compiled{sql: c.param(n.Value), typ: typeIRI}, nil
	case model.KindLiteral:
	default:
		return sqlNull, fmt.Errorf("%w: blank node in expression", ErrUnsupported)
	}
	if n.Lang != "" {
		return compiled{sql: c.param(n.Value), typ: valueType{kind: kindLang, lang: n.Lang}}, nil
	}

	t := typeOfDatatype(n.Datatype)
	lexical := strings.TrimSpace(n.Value)
	switch t.kind {
	case kindInteger:
		if v, err := strconv.ParseInt(lexical, 10, 64); err == nil {
			return compiled{sql: c.param(v), typ: t}, nil
		}
	case kindDecimal, kindDouble:
		if v, ok := parseDouble(lexical); ok {
			return compiled{sql: c.param(v), typ: t}, nil
		}
	case kindBoolean:
		if v, ok := parseBoolean(lexical); ok {
			return compiled{sql: c.param(v), typ: t}, nil
		}
	default:
		return compiled{sql: c.param(n.Value), typ: t}, nil
	}
	// Ill-typed literals keep their lexical form and datatype.
	return compiled{sql: c.param(n.Value), typ: valueType{kind: kindTyped, datatype: n.Datatype}}, nil
}

func (c *compiler) unary(x *model.UnaryExpr, sc *scope) (compiled, error) {
	operand, err := c.expr(x.X, sc)
	if err != nil {
		return sqlNull, err
	}
	switch x.Op {
	case "!":
		return compiled{sql: "(NOT " + ebv(operand) + ")", typ: typeBoolean}, nil
	case "-":
		if !operand.typ.numeric() {
			return compiled{sql: "NULL", typ: typeInteger}, nil
		}
		return compiled{sql: "(-" + operand.sql + ")", typ: operand.typ}, nil
	case "+":
		if !operand.typ.numeric() {
			return compiled{sql: "NULL", typ: typeInteger}, nil
		}
		return operand, nil
	default:
		return sqlNull, fmt.Errorf("%w: operator %s", ErrUnsupported, x.Op)
	}
}

func (c *compiler) binary(x *model.BinaryExpr, sc *scope) (compiled, error) {
	left, err := c.expr(x.Left, sc)
	if err != nil {
		return sqlNull, err
	}
	right, err := c.expr(x.Right, sc)
	if err != nil {
		return sqlNull, err
	}
	switch x.Op {
	case "||":
		return compiled{sql: "(" + ebv(left) + " OR " + ebv(right) + ")", typ: typeBoolean}, nil
	case "&&":
		return compiled{sql: "(" + ebv(left) + " AND " + ebv(right) + ")", typ: typeBoolean}, nil
	case "=", "!=", "<", ">", "<=", ">=":
		return compare(x.Op, left, right), nil
	case "+", "-", "*", "/":
		return arithmetic(x.Op, left, right), nil
	default:
		return sqlNull, fmt.Errorf("%w: operator %s", ErrUnsupported, x.Op)
	}
}

// canCompare reports whether values of types a and b can be compared
// with operator op.
func canCompare(op string, a, b valueType) bool {
	switch {
	case a.numeric() && b.numeric():
		return true
	case a.kind != b.kind:
		return false
	case a.kind == kindLang:
		return a.lang == b.lang
	case a.kind == kindTyped:
		return a.datatype == b.datatype
	case a.kind == kindIRI:
		return op == "=" || op == "!="
	default:
		return true
	}
}

func compare(op string, left, right compiled) compiled {
	sqlOp := op
	if op == "!=" {
		sqlOp = "<>"
	}
	if canCompare(op, left.typ, right.typ) {
		return compiled{sql: "(" + left.sql + " " + sqlOp + " " + right.sql + ")", typ: typeBoolean}
	}
	// Different kinds of terms are never equal. Everything else is a type
	// error.
	if (op == "=" || op == "!=") && (left.typ.kind == kindIRI) != (right.typ.kind == kindIRI) {
		result := "0"
		if op == "!=" {
			result = "1"
		}
		return compiled{
			sql: "(CASE WHEN " + left.sql + " IS NULL OR " + right.sql + " IS NULL THEN NULL ELSE " + result + " END)",
			typ: typeBoolean,
		}
	}
	return compiled{sql: "NULL", typ: typeBoolean}
}

func arithmetic(op string, left, right compiled) compiled {
	if !left.typ.numeric() || !right.typ.numeric() {
		return compiled{sql: "NULL", typ: typeInteger}
	}
	result := left.typ
	if right.typ.kind > result.kind {
		result = right.typ
	}
	if op == "/" && result.kind == kindInteger {
		return compiled{sql: "(CAST(" + left.sql + " AS REAL) / " + right.sql + ")", typ: typeDecimal}
	}
	return compiled{sql: "(" + left.sql + " " + op + " " + right.sql + ")", typ: result}
}

// ebv returns the effective boolean value of v as 1, 0 or NULL.
func ebv(v compiled) string {
	switch {
	case v.typ.kind == kindBoolean:
		return v.sql
	case v.typ.stringLike():
		return "(length(" + v.sql + ") > 0)"
	case v.typ.numeric():
		return "(" + v.sql + " <> 0)"
	default:
		return "NULL"
	}
}

// text returns the lexical form of v.
func text(v compiled) string {
	switch v.typ.kind {
	case kindInteger, kindDecimal:
		return "CAST(" + v.sql + " AS TEXT)"
	case kindDouble:
		return "tq_double_str(" + v.sql + ")"
	case kindBoolean:
		return "(CASE " + v.sql + " WHEN 1 THEN 'true' WHEN 0 THEN 'false' END)"
	default:
		return v.sql
	}
}

// unify brings values to a common type. Values of different types fall
// back to their lexical forms.
func unify(values []compiled) ([]string, valueType) {
	sqls := make([]string, len(values))
	if len(values) == 0 {
		return sqls, typeString
	}
	common := values[0].typ
	for _, v := range values[1:] {
		if v.typ != common {
			for i, v := range values {
				sqls[i] = text(v)
			}
			return sqls, typeString
		}
	}
	for i, v := range values {
		sqls[i] = v.sql
	}
	return sqls, common
}

// guard returns result, or NULL when v is NULL.
func guard(v compiled, result string) string {
	return "(CASE WHEN " + v.sql + " IS NULL THEN NULL ELSE " + result + " END)"
}
