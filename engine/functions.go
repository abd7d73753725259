package engine

import (
	"fmt"
	"strings"

	"github.com/nao1215/tablequery/domain/model"
)

// callArity is the accepted argument count of a built-in function;
// max < 0 means unbounded.
type callArity struct {
	min, max int
}

var builtins = map[string]callArity{
	"STR":            {1, 1},
	"LANG":           {1, 1},
	"DATATYPE":       {1, 1},
	"IRI":            {1, 1},
	"URI":            {1, 1},
	"STRDT":          {2, 2},
	"STRLANG":        {2, 2},
	"CONCAT":         {0, -1},
	"UCASE":          {1, 1},
	"LCASE":          {1, 1},
	"STRLEN":         {1, 1},
	"SUBSTR":         {2, 3},
	"CONTAINS":       {2, 2},
	"STRSTARTS":      {2, 2},
	"STRENDS":        {2, 2},
	"STRBEFORE":      {2, 2},
	"STRAFTER":       {2, 2},
	"REGEX":          {2, 3},
	"REPLACE":        {3, 4},
	"ENCODE_FOR_URI": {1, 1},
	"BOUND":          {1, 1},
	"COALESCE":       {1, -1},
	"IF":             {3, 3},
	"ISIRI":          {1, 1},
	"ISURI":          {1, 1},
	"ISLITERAL":      {1, 1},
	"ISBLANK":        {1, 1},
	"ISNUMERIC":      {1, 1},
	"SAMETERM":       {2, 2},
	"ABS":            {1, 1},
	"ROUND":          {1, 1},
	"CEIL":           {1, 1},
	"FLOOR":          {1, 1},
	"UUID":           {0, 0},
	"STRUUID":        {0, 0},
}

// call translates a built-in function call or a datatype cast.
func (c *compiler) call(x *model.CallExpr, sc *scope) (compiled, error) {
	name := x.Name
	if strings.HasPrefix(name, model.XSDNamespace) {
		if len(x.Args) != 1 {
			return sqlNull, fmt.Errorf("%w: %s takes 1 argument, got %d", ErrArity, name, len(x.Args))
		}
		arg, err := c.expr(x.Args[0], sc)
		if err != nil {
			return sqlNull, err
		}
		return cast(name, arg), nil
	}

	arity, ok := builtins[name]
	if !ok {
		return sqlNull, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	if len(x.Args) < arity.min || (arity.max >= 0 && len(x.Args) > arity.max) {
		return sqlNull, fmt.Errorf("%w: %s with %d arguments", ErrArity, name, len(x.Args))
	}

	if name == "BOUND" {
		v, ok := x.Args[0].(*model.VarExpr)
		if !ok {
			return sqlNull, fmt.Errorf("%w: BOUND needs a variable", ErrUnsupported)
		}
		if _, inScope := sc.lookup(v.Var); !inScope {
			return compiled{sql: "0", typ: typeBoolean}, nil
		}
		return compiled{sql: "(" + column(v.Var) + " IS NOT NULL)", typ: typeBoolean}, nil
	}

	args := make([]compiled, len(x.Args))
	for i, a := range x.Args {
		arg, err := c.expr(a, sc)
		if err != nil {
			return sqlNull, err
		}
		args[i] = arg
	}

	switch name {
	case "STR":
		return compiled{sql: text(args[0]), typ: typeString}, nil
	case "LANG":
		if !args[0].typ.literal() {
			return sqlNull, nil
		}
		return compiled{sql: guard(args[0], c.param(args[0].typ.lang)), typ: typeString}, nil
	case "DATATYPE":
		if !args[0].typ.literal() {
			return compiled{sql: "NULL", typ: typeIRI}, nil
		}
		return compiled{sql: guard(args[0], c.param(args[0].typ.datatypeIRI())), typ: typeIRI}, nil
	case "IRI", "URI":
		return c.iri(args[0]), nil
	case "STRDT":
		dt, ok := x.Args[1].(*model.TermExpr)
		if !ok || !dt.Node.IsIRI() {
			return sqlNull, fmt.Errorf("%w: STRDT needs a constant datatype IRI", ErrUnsupported)
		}
		if !args[0].typ.stringLike() {
			return compiled{sql: "NULL", typ: typeOfDatatype(dt.Node.Value)}, nil
		}
		return cast(dt.Node.Value, args[0]), nil
	case "STRLANG":
		tag, ok := x.Args[1].(*model.TermExpr)
		if !ok || !tag.Node.IsLiteral() {
			return sqlNull, fmt.Errorf("%w: STRLANG needs a constant language tag", ErrUnsupported)
		}
		lang := strings.ToLower(tag.Node.Value)
		if args[0].typ.kind != kindString {
			return compiled{sql: "NULL", typ: valueType{kind: kindLang, lang: lang}}, nil
		}
		return compiled{sql: args[0].sql, typ: valueType{kind: kindLang, lang: lang}}, nil
	case "CONCAT":
		return concat(args), nil
	case "UCASE":
		return stringFunc("tq_ucase", args[0], args[0].typ), nil
	case "LCASE":
		return stringFunc("tq_lcase", args[0], args[0].typ), nil
	case "STRLEN":
		if !args[0].typ.stringLike() {
			return compiled{sql: "NULL", typ: typeInteger}, nil
		}
		return compiled{sql: "length(" + args[0].sql + ")", typ: typeInteger}, nil
	case "SUBSTR":
		if !args[0].typ.stringLike() || !args[1].typ.numeric() || (len(args) == 3 && !args[2].typ.numeric()) {
			return compiled{sql: "NULL", typ: args[0].typ}, nil
		}
		return compiled{sql: callSQL("tq_substr", sqls(args)...), typ: args[0].typ}, nil
	case "CONTAINS", "STRSTARTS", "STRENDS":
		if !args[0].typ.stringLike() || !args[1].typ.stringLike() {
			return compiled{sql: "NULL", typ: typeBoolean}, nil
		}
		return compiled{sql: callSQL("tq_"+strings.ToLower(name), args[0].sql, args[1].sql), typ: typeBoolean}, nil
	case "STRBEFORE", "STRAFTER":
		if !args[0].typ.stringLike() || !args[1].typ.stringLike() {
			return compiled{sql: "NULL", typ: typeString}, nil
		}
		return compiled{sql: callSQL("tq_"+strings.ToLower(name), args[0].sql, args[1].sql), typ: args[0].typ}, nil
	case "REGEX":
		flags := c.param("")
		if len(args) == 3 {
			flags = args[2].sql
		}
		if !args[0].typ.stringLike() || !args[1].typ.stringLike() {
			return compiled{sql: "NULL", typ: typeBoolean}, nil
		}
		return compiled{sql: callSQL("tq_regex", args[0].sql, args[1].sql, flags), typ: typeBoolean}, nil
	case "REPLACE":
		flags := c.param("")
		if len(args) == 4 {
			flags = args[3].sql
		}
		if !args[0].typ.stringLike() || !args[1].typ.stringLike() || !args[2].typ.stringLike() {
			return compiled{sql: "NULL", typ: args[0].typ}, nil
		}
		return compiled{sql: callSQL("tq_replace", args[0].sql, args[1].sql, args[2].sql, flags), typ: args[0].typ}, nil
	case "ENCODE_FOR_URI":
		return stringFunc("tq_encode_for_uri", args[0], typeString), nil
	case "COALESCE":
		values, t := unify(args)
		return compiled{sql: callSQL("COALESCE", append(values, "NULL")...), typ: t}, nil
	case "IF":
		values, t := unify(args[1:])
		cond := ebv(args[0])
		return compiled{
			sql: "(CASE WHEN " + cond + " THEN " + values[0] + " WHEN NOT " + cond + " THEN " + values[1] + " END)",
			typ: t,
		}, nil
	case "ISIRI", "ISURI":
		return compiled{sql: guard(args[0], boolSQL(args[0].typ.kind == kindIRI)), typ: typeBoolean}, nil
	case "ISLITERAL":
		return compiled{sql: guard(args[0], boolSQL(args[0].typ.literal())), typ: typeBoolean}, nil
	case "ISBLANK":
		return compiled{sql: guard(args[0], "0"), typ: typeBoolean}, nil
	case "ISNUMERIC":
		return compiled{sql: guard(args[0], boolSQL(args[0].typ.numeric())), typ: typeBoolean}, nil
	case "SAMETERM":
		if args[0].typ != args[1].typ {
			return compiled{
				sql: "(CASE WHEN " + args[0].sql + " IS NULL OR " + args[1].sql + " IS NULL THEN NULL ELSE 0 END)",
				typ: typeBoolean,
			}, nil
		}
		return compiled{sql: "(" + args[0].sql + " = " + args[1].sql + ")", typ: typeBoolean}, nil
	case "ABS":
		if !args[0].typ.numeric() {
			return compiled{sql: "NULL", typ: typeInteger}, nil
		}
		return compiled{sql: "abs(" + args[0].sql + ")", typ: args[0].typ}, nil
	case "ROUND", "CEIL", "FLOOR":
		if !args[0].typ.numeric() {
			return compiled{sql: "NULL", typ: typeInteger}, nil
		}
		if args[0].typ.kind == kindInteger {
			return args[0], nil
		}
		return compiled{sql: callSQL("tq_"+strings.ToLower(name), args[0].sql), typ: args[0].typ}, nil
	case "UUID":
		return compiled{sql: "tq_uuid()", typ: typeIRI}, nil
	case "STRUUID":
		return compiled{sql: "tq_struuid()", typ: typeString}, nil
	}
	return sqlNull, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
}

// iri converts a string to an IRI resolved against the query base.
func (c *compiler) iri(arg compiled) compiled {
	switch {
	case arg.typ.kind == kindIRI:
		return arg
	case arg.typ.kind == kindString:
		return compiled{sql: callSQL("tq_iri", arg.sql, c.param(c.base)), typ: typeIRI}
	default:
		return compiled{sql: "NULL", typ: typeIRI}
	}
}

// cast converts arg to the given XML Schema datatype.
func cast(datatype string, arg compiled) compiled {
	target := typeOfDatatype(datatype)
	if datatype == model.XSDNamespace+"float" {
		target = typeDouble
	}
	if arg.typ.kind == kindIRI && target.kind != kindString {
		return compiled{sql: "NULL", typ: target}
	}

	switch target.kind {
	case kindString:
		return compiled{sql: text(arg), typ: typeString}
	case kindInteger:
		switch {
		case arg.typ.kind == kindInteger || arg.typ.kind == kindBoolean:
			return compiled{sql: arg.sql, typ: target}
		case arg.typ.numeric():
			return compiled{sql: "CAST(" + arg.sql + " AS INTEGER)", typ: target}
		default:
			return compiled{sql: callSQL("tq_integer", arg.sql), typ: target}
		}
	case kindDecimal, kindDouble:
		if arg.typ.numeric() || arg.typ.kind == kindBoolean {
			return compiled{sql: "CAST(" + arg.sql + " AS REAL)", typ: target}
		}
		fn := "tq_decimal"
		if target.kind == kindDouble {
			fn = "tq_double"
		}
		return compiled{sql: callSQL(fn, arg.sql), typ: target}
	case kindBoolean:
		switch {
		case arg.typ.kind == kindBoolean:
			return arg
		case arg.typ.numeric():
			return compiled{sql: "(" + arg.sql + " <> 0)", typ: target}
		default:
			return compiled{sql: callSQL("tq_boolean", arg.sql), typ: target}
		}
	default:
		return compiled{sql: text(arg), typ: target}
	}
}

func concat(args []compiled) compiled {
	if len(args) == 0 {
		return compiled{sql: "''", typ: typeString}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = text(a)
	}
	return compiled{sql: "(" + strings.Join(parts, " || ") + ")", typ: typeString}
}

func stringFunc(fn string, arg compiled, result valueType) compiled {
	if !arg.typ.stringLike() {
		return compiled{sql: "NULL", typ: result}
	}
	return compiled{sql: callSQL(fn, arg.sql), typ: result}
}

func callSQL(fn string, args ...string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}

func sqls(values []compiled) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.sql
	}
	return out
}

func boolSQL(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
