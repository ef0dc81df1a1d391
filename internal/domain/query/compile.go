package query

import (
	"fmt"
	"strings"
	"time"
)

// Compile renders a validated plan as parameterized SQL. Identifiers come only from the
// validated plan, so they are allow-listed; every value is a bind parameter.
func Compile(p Plan) (string, []any) {
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var selects []string
	for _, c := range p.Columns {
		selects = append(selects, quote(c))
	}
	if p.Aggregate != nil {
		target := "*"
		if p.Aggregate.Column != "*" {
			target = quote(p.Aggregate.Column)
		}
		selects = append(selects, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(p.Aggregate.Func), target, quote(p.Aggregate.Alias())))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(selects, ", "), quote(p.Table))

	if len(p.Filters) > 0 {
		conds := make([]string, 0, len(p.Filters))
		for _, f := range p.Filters {
			switch f.Op {
			case "in":
				conds = append(conds, fmt.Sprintf("%s = ANY(%s)", quote(f.Column), bind(typedSlice(f.Value))))
			case "like":
				conds = append(conds, fmt.Sprintf("%s ILIKE %s", quote(f.Column), bind(f.Value)))
			default:
				conds = append(conds, fmt.Sprintf("%s %s %s", quote(f.Column), f.Op, bind(f.Value)))
			}
		}
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if len(p.GroupBy) > 0 {
		groups := make([]string, 0, len(p.GroupBy))
		for _, g := range p.GroupBy {
			groups = append(groups, quote(g))
		}
		b.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}

	if len(p.OrderBy) > 0 {
		orders := make([]string, 0, len(p.OrderBy))
		for _, o := range p.OrderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			orders = append(orders, quote(o.Column)+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}

	fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	return b.String(), args
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// resultColumns lists the output column names of a plan in select order.
func resultColumns(p Plan) []string {
	cols := append([]string(nil), p.Columns...)
	if p.Aggregate != nil {
		cols = append(cols, p.Aggregate.Alias())
	}
	return cols
}

// typedSlice turns the coerced values of an "in" filter into a concretely typed slice,
// which pgx encodes as a PostgreSQL array.
func typedSlice(v any) any {
	items, _ := v.([]any)
	if len(items) == 0 {
		return v
	}
	switch items[0].(type) {
	case string:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.(string))
		}
		return out
	case float64:
		out := make([]float64, 0, len(items))
		for _, item := range items {
			out = append(out, item.(float64))
		}
		return out
	case time.Time:
		out := make([]time.Time, 0, len(items))
		for _, item := range items {
			out = append(out, item.(time.Time))
		}
		return out
	}
	return v
}
