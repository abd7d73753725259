package tablequery

import (
	"github.com/nao1215/tablequery/domain/model"
)

// InjectTable rewrites q in place so that its pattern reads the rows of t.
//
// The table becomes an anonymous data element at the front of the query
// pattern; the existing pattern follows it, spliced in when it is a group
// and nested otherwise. For SELECT * the projection is expanded to the
// variables in scope before ROWNUM is added to the data element, so
// ROWNUM is only returned when a query asks for it by name.
//
// InjectTable must be called at most once per query.
func InjectTable(q *model.Query, t model.Table) error {
	vars, err := t.Vars()
	if err != nil {
		return err
	}

	data := &model.Data{Table: t}
	hasRowNum := false
	for _, v := range vars {
		if v == model.RowNum {
			hasRowNum = true
			if q.IsQueryResultStar() {
				continue
			}
		}
		data.AddVar(v)
	}

	group := &model.Group{}
	group.AddElement(data)
	switch pattern := q.Pattern.(type) {
	case nil:
	case *model.Group:
		for _, e := range pattern.Elements {
			group.AddElement(e)
		}
	default:
		group.AddElement(pattern)
	}
	q.Pattern = group

	if q.IsQueryResultStar() {
		q.ExpandStar()
		if hasRowNum {
			data.AddVar(model.RowNum)
		}
	}
	return nil
}
