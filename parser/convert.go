package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/tablequery/domain/model"
)

// converter turns the AST of one query into a model.Query.
type converter struct {
	q *model.Query
}

// convertQuery converts aq. Declarations of inherit are copied first so
// that later queries of a text share the prologue of the first.
func convertQuery(aq *astQuery, inherit *model.Query) (*model.Query, error) {
	qt := model.QueryTypeSelect
	if aq.Construct != nil {
		qt = model.QueryTypeConstruct
	}
	c := &converter{q: model.NewQuery(qt)}

	if inherit != nil {
		c.q.Base = inherit.Base
		c.q.Prefixes = append(c.q.Prefixes, inherit.Prefixes...)
	}
	for _, p := range aq.Prologue {
		switch {
		case p.Base != nil:
			c.q.Base = c.resolve(trimIRI(*p.Base))
		case p.Prefix != nil:
			c.declare(strings.TrimSuffix(p.Prefix.Name, ":"), c.resolve(trimIRI(p.Prefix.IRI)))
		}
	}

	for _, from := range aq.From {
		c.q.From = append(c.q.From, c.resolve(trimIRI(from)))
	}

	group, err := c.group(aq.Where)
	if err != nil {
		return nil, err
	}
	c.q.Pattern = group

	switch {
	case aq.Select != nil:
		if err := c.selectClause(aq.Select, group); err != nil {
			return nil, err
		}
	case aq.Construct != nil:
		template, err := c.template(aq.Construct.Template)
		if err != nil {
			return nil, err
		}
		c.q.Template = template
	}

	for _, m := range aq.Modifiers {
		switch {
		case m.Limit != nil:
			c.q.Limit = *m.Limit
		case m.Offset != nil:
			c.q.Offset = *m.Offset
		}
	}
	return c.q, nil
}

func (c *converter) declare(name, iri string) {
	for i, p := range c.q.Prefixes {
		if p.Name == name {
			c.q.Prefixes[i].IRI = iri
			return
		}
	}
	c.q.Prefixes = append(c.q.Prefixes, model.Prefix{Name: name, IRI: iri})
}

// selectClause sets the projection. (expr AS ?v) items become BIND
// elements at the end of the pattern.
func (c *converter) selectClause(s *astSelect, group *model.Group) error {
	c.q.Distinct = s.Distinct
	if s.Star {
		c.q.Star = true
		return nil
	}
	for _, item := range s.Items {
		if item.Var != nil {
			c.q.AddResultVar(varName(*item.Var))
			continue
		}
		e, err := c.expr(item.Expr)
		if err != nil {
			return err
		}
		v := varName(item.As)
		group.AddElement(&model.Bind{Expr: e, Var: v})
		c.q.AddResultVar(v)
	}
	return nil
}

func (c *converter) template(triples []*astTriples) ([]model.TriplePattern, error) {
	var out []model.TriplePattern
	for _, t := range triples {
		s, err := c.term(t.Subject)
		if err != nil {
			return nil, err
		}
		for _, po := range t.Predicates {
			p, err := c.term(po.Verb)
			if err != nil {
				return nil, err
			}
			for _, ao := range po.Objects {
				o, err := c.term(ao)
				if err != nil {
					return nil, err
				}
				out = append(out, model.TriplePattern{S: s, P: p, O: o})
			}
		}
	}
	return out, nil
}

func (c *converter) term(t *astTerm) (model.Term, error) {
	switch {
	case t.Var != nil:
		return model.VarTerm(varName(*t.Var)), nil
	case t.IRI != nil:
		iri, err := c.iri(t.IRI)
		if err != nil {
			return model.Term{}, err
		}
		return model.NodeTerm(model.NewIRI(iri)), nil
	case t.Blank != nil:
		return model.NodeTerm(model.NewBlank(strings.TrimPrefix(*t.Blank, "_:"))), nil
	case t.A:
		return model.NodeTerm(model.NewIRI(model.RDFType)), nil
	case t.Literal != nil:
		n, err := c.literal(t.Literal)
		if err != nil {
			return model.Term{}, err
		}
		return model.NodeTerm(n), nil
	}
	return model.Term{}, fmt.Errorf("%w: empty term", ErrInvalidTerm)
}

func (c *converter) group(g *astGroup) (*model.Group, error) {
	group := &model.Group{}
	if g == nil {
		return group, nil
	}
	for _, el := range g.Elements {
		switch {
		case el.Filter != nil:
			var (
				e   model.Expr
				err error
			)
			if el.Filter.Bracketed != nil {
				e, err = c.expr(el.Filter.Bracketed)
			} else {
				e, err = c.call(el.Filter.Call)
			}
			if err != nil {
				return nil, err
			}
			group.AddElement(&model.Filter{Expr: e})
		case el.Bind != nil:
			e, err := c.expr(el.Bind.Expr)
			if err != nil {
				return nil, err
			}
			group.AddElement(&model.Bind{Expr: e, Var: varName(el.Bind.Var)})
		case el.Group != nil:
			nested, err := c.group(el.Group)
			if err != nil {
				return nil, err
			}
			group.AddElement(nested)
		}
	}
	return group, nil
}

func (c *converter) expr(e *astExpr) (model.Expr, error) {
	var out model.Expr
	for _, and := range e.Or {
		right, err := c.and(and)
		if err != nil {
			return nil, err
		}
		out = binary("||", out, right)
	}
	return out, nil
}

func (c *converter) and(a *astAnd) (model.Expr, error) {
	var out model.Expr
	for _, rel := range a.And {
		right, err := c.relational(rel)
		if err != nil {
			return nil, err
		}
		out = binary("&&", out, right)
	}
	return out, nil
}

func (c *converter) relational(r *astRelational) (model.Expr, error) {
	left, err := c.additive(r.Left)
	if err != nil {
		return nil, err
	}
	if r.Op == nil {
		return left, nil
	}
	right, err := c.additive(r.Right)
	if err != nil {
		return nil, err
	}
	return &model.BinaryExpr{Op: *r.Op, Left: left, Right: right}, nil
}

func (c *converter) additive(a *astAdditive) (model.Expr, error) {
	out, err := c.multiplicative(a.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range a.Tail {
		right, err := c.multiplicative(op.Operand)
		if err != nil {
			return nil, err
		}
		out = &model.BinaryExpr{Op: op.Op, Left: out, Right: right}
	}
	return out, nil
}

func (c *converter) multiplicative(m *astMultiplicative) (model.Expr, error) {
	out, err := c.unary(m.Head)
	if err != nil {
		return nil, err
	}
	for _, op := range m.Tail {
		right, err := c.unary(op.Operand)
		if err != nil {
			return nil, err
		}
		out = &model.BinaryExpr{Op: op.Op, Left: out, Right: right}
	}
	return out, nil
}

func (c *converter) unary(u *astUnary) (model.Expr, error) {
	x, err := c.primary(u.Primary)
	if err != nil {
		return nil, err
	}
	if u.Op == nil {
		return x, nil
	}
	return &model.UnaryExpr{Op: *u.Op, X: x}, nil
}

func (c *converter) primary(p *astPrimary) (model.Expr, error) {
	switch {
	case p.Bracketed != nil:
		return c.expr(p.Bracketed)
	case p.Call != nil:
		return c.call(p.Call)
	case p.Var != nil:
		return &model.VarExpr{Var: varName(*p.Var)}, nil
	case p.Literal != nil:
		n, err := c.literal(p.Literal)
		if err != nil {
			return nil, err
		}
		return &model.TermExpr{Node: n}, nil
	case p.IRI != nil:
		iri, err := c.iri(p.IRI)
		if err != nil {
			return nil, err
		}
		return &model.TermExpr{Node: model.NewIRI(iri)}, nil
	}
	return nil, fmt.Errorf("%w: empty expression", ErrInvalidTerm)
}

// call converts a function call. Keywords are upper-cased; functions
// named by IRI, such as xsd:integer, keep the full IRI.
func (c *converter) call(call *astCall) (model.Expr, error) {
	var name string
	if call.Name.Keyword != nil {
		name = strings.ToUpper(*call.Name.Keyword)
	} else {
		iri, err := c.iri(call.Name.IRI)
		if err != nil {
			return nil, err
		}
		name = iri
	}
	out := &model.CallExpr{Name: name}
	for _, a := range call.Args {
		e, err := c.expr(a)
		if err != nil {
			return nil, err
		}
		out.Args = append(out.Args, e)
	}
	return out, nil
}

func (c *converter) literal(l *astLiteral) (model.Node, error) {
	switch {
	case l.String != nil:
		value, err := unescapeString(l.String.Value)
		if err != nil {
			return model.Node{}, err
		}
		switch {
		case l.String.Lang != nil:
			return model.NewLangLiteral(value, strings.TrimPrefix(*l.String.Lang, "@")), nil
		case l.String.Datatype != nil:
			datatype, err := c.iri(l.String.Datatype)
			if err != nil {
				return model.Node{}, err
			}
			return model.NewTypedLiteral(value, datatype), nil
		}
		return model.NewLiteral(value), nil
	case l.Number != nil:
		sign := ""
		if l.Number.Sign != nil {
			sign = *l.Number.Sign
		}
		switch {
		case l.Number.Double != nil:
			return model.NewTypedLiteral(sign+*l.Number.Double, model.XSDDouble), nil
		case l.Number.Decimal != nil:
			return model.NewTypedLiteral(sign+*l.Number.Decimal, model.XSDDecimal), nil
		default:
			return model.NewTypedLiteral(sign+*l.Number.Integer, model.XSDInteger), nil
		}
	case l.Bool != nil:
		return model.NewTypedLiteral(strings.ToLower(*l.Bool), model.XSDBoolean), nil
	}
	return model.Node{}, fmt.Errorf("%w: empty literal", ErrInvalidTerm)
}

// iri expands a prefixed name or resolves an IRI reference against the
// base.
func (c *converter) iri(i *astIRI) (string, error) {
	if i.Ref != nil {
		return c.resolve(trimIRI(*i.Ref)), nil
	}
	iri, ok := c.q.ExpandPrefixed(*i.PName)
	if !ok {
		prefix, _, _ := strings.Cut(*i.PName, ":")
		return "", fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix+":")
	}
	return iri, nil
}

func (c *converter) resolve(ref string) string {
	if c.q.Base == "" {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.q.Base)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

func binary(op string, left, right model.Expr) model.Expr {
	if left == nil {
		return right
	}
	return &model.BinaryExpr{Op: op, Left: left, Right: right}
}

func varName(token string) model.Var {
	return model.Var(token[1:])
}

func trimIRI(token string) string {
	return strings.TrimSuffix(strings.TrimPrefix(token, "<"), ">")
}

// unescapeString strips the quotes of a string token and decodes its
// escape sequences.
func unescapeString(token string) (string, error) {
	var body string
	switch {
	case strings.HasPrefix(token, `"""`) || strings.HasPrefix(token, `'''`):
		body = token[3 : len(token)-3]
	default:
		body = token[1 : len(token)-1]
	}
	if !strings.Contains(body, `\`) {
		return body, nil
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' {
			b.WriteByte(ch)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("%w: dangling escape in %s", ErrInvalidTerm, token)
		}
		switch body[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '"', '\'', '\\':
			b.WriteByte(body[i])
		case 'u', 'U':
			width := 4
			if body[i] == 'U' {
				width = 8
			}
			if i+1+width > len(body) {
				return "", fmt.Errorf("%w: short unicode escape in %s", ErrInvalidTerm, token)
			}
			code, err := strconv.ParseUint(body[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(code)) {
				return "", fmt.Errorf("%w: bad unicode escape in %s", ErrInvalidTerm, token)
			}
			b.WriteRune(rune(code))
			i += width
		default:
			return "", fmt.Errorf("%w: unknown escape \\%c in %s", ErrInvalidTerm, body[i], token)
		}
	}
	return b.String(), nil
}
