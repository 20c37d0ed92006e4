package store

import (
	"fmt"
	"strings"
)

// predicate is one WHERE condition of an event query.
type predicate interface {
	compile() (string, []any)
}

// equals matches column = value.
type equals struct {
	Column string
	Value  any
}

func (e equals) compile() (string, []any) {
	return e.Column + " = ?", []any{e.Value}
}

// atLeast matches column >= value.
type atLeast struct {
	Column string
	Value  any
}

func (a atLeast) compile() (string, []any) {
	return a.Column + " >= ?", []any{a.Value}
}

// and is the conjunction of its predicates; empty is always true.
type and []predicate

func (a and) compile() (string, []any) {
	if len(a) == 0 {
		return "1 = 1", nil
	}
	parts := make([]string, 0, len(a))
	var params []any
	for _, p := range a {
		sql, ps := p.compile()
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params
}

// eventQuery selects rows of one event table in a stable order.
//
// Every compiled query orders by the given columns and then by id, so
// rows written in the same cycle always come back in insertion order.
// Values are always bound as parameters.
type eventQuery struct {
	Columns []string
	From    string
	Where   predicate
	OrderBy []string
	Limit   int
}

// compile renders the query as parameterized SQLite.
func (q eventQuery) compile() (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("event query: table is required")
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("event query %s: no columns", q.From)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.From)

	var params []any
	if q.Where != nil {
		sql, ps := q.Where.compile()
		b.WriteString(" WHERE " + sql)
		params = ps
	}

	order := make([]string, 0, len(q.OrderBy)+1)
	for _, col := range q.OrderBy {
		order = append(order, col+" ASC")
	}
	order = append(order, "id ASC")
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}
