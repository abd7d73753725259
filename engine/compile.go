package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/tablequery/domain/model"
)

// seqColumn orders the rows of every relation the compiler builds.
const seqColumn = "_seq"

// pattern is a query pattern flattened into its parts.
type pattern struct {
	data    []*model.Data
	binds   []*model.Bind
	filters []*model.Filter
}

// flatten collects the elements of e. Nested groups are merged into the
// enclosing group.
func flatten(e model.Element) (pattern, error) {
	var p pattern
	var walk func(model.Element) error
	walk = func(e model.Element) error {
		switch el := e.(type) {
		case nil:
		case *model.Group:
			for _, child := range el.Elements {
				if err := walk(child); err != nil {
					return err
				}
			}
		case *model.Data:
			p.data = append(p.data, el)
		case *model.Bind:
			p.binds = append(p.binds, el)
		case *model.Filter:
			p.filters = append(p.filters, el)
		default:
			return fmt.Errorf("%w: pattern element %T", ErrUnsupported, e)
		}
		return nil
	}
	return p, walk(e)
}

// dataTable is a data element loaded into a temporary table. types holds
// the static type of each variable of the element.
type dataTable struct {
	name    string
	element *model.Data
	types   []valueType
	mixed   []bool
}

// plan is a compiled query.
type plan struct {
	sql   string
	args  []any
	vars  []model.Var
	types []valueType
}

// compiler translates a query into one SQLite statement. Constants are
// always passed as numbered parameters.
type compiler struct {
	base string
	args []any
}

func newCompiler(base string) *compiler {
	return &compiler{base: base}
}

// param adds v to the statement parameters and returns its placeholder.
func (c *compiler) param(v any) string {
	c.args = append(c.args, v)
	return "?" + strconv.Itoa(len(c.args))
}

// column returns the SQL column holding v.
func column(v model.Var) string {
	return quoteIdent("v_" + v.Name())
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// compileQuery builds the statement returning the solutions of q over the
// loaded tables, one row per solution with a column per variable of
// outVars. A variable of outVars that is not in scope is always NULL.
func compileQuery(q *model.Query, p pattern, tables []*dataTable, outVars []model.Var) (*plan, error) {
	c := newCompiler(q.Base)

	relation, sc := c.join(tables)
	for i, b := range p.binds {
		if _, ok := sc.lookup(b.Var); ok {
			return nil, fmt.Errorf("%w: %s", ErrBindScope, b.Var)
		}
		value, err := c.expr(b.Expr, sc)
		if err != nil {
			return nil, err
		}
		relation = fmt.Sprintf("SELECT *, %s AS %s FROM (%s) AS b%d", value.sql, column(b.Var), relation, i)
		sc.add(b.Var, value.typ)
	}

	var conditions []string
	for _, f := range p.filters {
		cond, err := c.expr(f.Expr, sc)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, ebv(cond))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	out := &plan{vars: outVars, types: make([]valueType, len(outVars))}
	outputs := make([]string, len(outVars))
	var groupBy []string
	for i, v := range outVars {
		t, ok := sc.lookup(v)
		if !ok {
			outputs[i] = "NULL"
			out.types[i] = typeString
			continue
		}
		outputs[i] = column(v)
		out.types[i] = t
		groupBy = append(groupBy, column(v))
	}
	selectList := strings.Join(outputs, ", ")
	if selectList == "" {
		selectList = "1"
	}

	limit := c.param(limitValue(q.Limit))
	offset := c.param(offsetValue(q.Offset))

	switch {
	case !q.Distinct:
		out.sql = fmt.Sprintf("SELECT %s FROM (%s) AS q%s ORDER BY %s LIMIT %s OFFSET %s",
			selectList, relation, where, seqColumn, limit, offset)
	case len(groupBy) > 0:
		out.sql = fmt.Sprintf("SELECT %s FROM (%s) AS q%s GROUP BY %s ORDER BY MIN(%s) LIMIT %s OFFSET %s",
			selectList, relation, where, strings.Join(groupBy, ", "), seqColumn, limit, offset)
	default:
		// Every solution is the same, so there is at most one distinct row.
		out.sql = fmt.Sprintf("SELECT * FROM (SELECT %s FROM (%s) AS q%s LIMIT 1) LIMIT %s OFFSET %s",
			selectList, relation, where, limit, offset)
	}
	out.args = c.args
	return out, nil
}

func limitValue(limit int64) int64 {
	if limit < 0 {
		return -1
	}
	return limit
}

func offsetValue(offset int64) int64 {
	if offset < 0 {
		return 0
	}
	return offset
}

// join builds the relation of all data elements. Elements sharing a
// variable are joined on it; an unbound value joins with anything.
func (c *compiler) join(tables []*dataTable) (string, *scope) {
	sc := newScope()
	if len(tables) == 0 {
		return "SELECT 1 AS " + seqColumn, sc
	}

	relation, sc := tables[0].relation()
	for _, t := range tables[1:] {
		right, rsc := t.relation()
		merged := newScope()
		var (
			columns    []string
			conditions []string
		)
		for _, v := range sc.order {
			lt := sc.types[v]
			rt, shared := rsc.lookup(v)
			if !shared {
				columns = append(columns, "l."+column(v)+" AS "+column(v))
				merged.add(v, lt)
				continue
			}
			l := compiled{sql: "l." + column(v), typ: lt}
			r := compiled{sql: "r." + column(v), typ: rt}
			values, common := unify([]compiled{l, r})
			columns = append(columns, "COALESCE("+values[0]+", "+values[1]+") AS "+column(v))
			conditions = append(conditions, fmt.Sprintf("(%s IS NULL OR %s IS NULL OR %s = %s)", l.sql, r.sql, values[0], values[1]))
			merged.add(v, common)
		}
		for _, v := range rsc.order {
			if _, ok := sc.lookup(v); ok {
				continue
			}
			columns = append(columns, "r."+column(v)+" AS "+column(v))
			merged.add(v, rsc.types[v])
		}
		on := "1"
		if len(conditions) > 0 {
			on = strings.Join(conditions, " AND ")
		}
		columns = append([]string{fmt.Sprintf("ROW_NUMBER() OVER (ORDER BY l.%[1]s, r.%[1]s) AS %[1]s", seqColumn)}, columns...)
		relation = fmt.Sprintf("SELECT %s FROM (%s) AS l JOIN (%s) AS r ON %s",
			strings.Join(columns, ", "), relation, right, on)
		sc = merged
	}
	return relation, sc
}

// relation selects the rows of the table with a column per variable.
// Columns holding values of different types are read as strings.
func (t *dataTable) relation() (string, *scope) {
	sc := newScope()
	columns := []string{seqColumn}
	for i, v := range t.element.Vars {
		if _, ok := sc.lookup(v); ok {
			continue
		}
		if t.mixed[i] {
			columns = append(columns, "CAST("+column(v)+" AS TEXT) AS "+column(v))
		} else {
			columns = append(columns, column(v))
		}
		sc.add(v, t.types[i])
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), t.name), sc
}
