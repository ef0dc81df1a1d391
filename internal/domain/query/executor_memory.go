package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TableSource returns every row of a table keyed by column name.
type TableSource func(ctx context.Context) ([]map[string]any, error)

// MemoryExecutor evaluates plans over in-memory tables with the same semantics as the SQL compiler.
type MemoryExecutor struct {
	Tables map[string]TableSource
}

func NewMemoryExecutor(tables map[string]TableSource) *MemoryExecutor {
	return &MemoryExecutor{Tables: tables}
}

func (e *MemoryExecutor) Execute(ctx context.Context, p Plan) (Rows, error) {
	source, ok := e.Tables[p.Table]
	if !ok {
		return Rows{}, fmt.Errorf("no source for table %s", p.Table)
	}
	all, err := source(ctx)
	if err != nil {
		return Rows{}, err
	}

	var matched []map[string]any
	for _, row := range all {
		if matchesAll(row, p.Filters) {
			matched = append(matched, row)
		}
	}

	if p.Aggregate != nil {
		matched = aggregate(matched, p)
	}

	if len(p.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range p.OrderBy {
				c, _ := compare(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if len(matched) > p.Limit {
		matched = matched[:p.Limit]
	}

	out := Rows{Columns: resultColumns(p)}
	for _, row := range matched {
		values := make([]any, len(out.Columns))
		for i, c := range out.Columns {
			values[i] = row[c]
		}
		out.Values = append(out.Values, values)
	}
	return out, nil
}

func matchesAll(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(row[f.Column], f) {
			return false
		}
	}
	return true
}

func matches(v any, f Filter) bool {
	if v == nil {
		return false
	}
	switch f.Op {
	case "in":
		items, _ := f.Value.([]any)
		for _, item := range items {
			if c, ok := compare(v, item); ok && c == 0 {
				return true
			}
		}
		return false
	case "like":
		s, ok := v.(string)
		pattern, _ := f.Value.(string)
		return ok && likeMatch(strings.ToLower(s), strings.ToLower(pattern))
	}
	c, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

// compare orders two values of compatible kinds. nil sorts first.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt), true
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return s != "" && likeMatch(s[1:], pattern[1:])
	default:
		return s != "" && s[0] == pattern[0] && likeMatch(s[1:], pattern[1:])
	}
}

func aggregate(rows []map[string]any, p Plan) []map[string]any {
	type group struct {
		key  map[string]any
		rows []map[string]any
	}
	var order []string
	groups := map[string]*group{}
	for _, row := range rows {
		parts := make([]string, len(p.GroupBy))
		key := map[string]any{}
		for i, g := range p.GroupBy {
			parts[i] = fmt.Sprintf("%v", row[g])
			key[g] = row[g]
		}
		k := strings.Join(parts, "\x00")
		if _, ok := groups[k]; !ok {
			groups[k] = &group{key: key}
			order = append(order, k)
		}
		groups[k].rows = append(groups[k].rows, row)
	}
	if len(p.GroupBy) == 0 && len(order) == 0 {
		groups[""] = &group{key: map[string]any{}}
		order = append(order, "")
	}

	alias := p.Aggregate.Alias()
	out := make([]map[string]any, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := g.key
		row[alias] = reduce(g.rows, *p.Aggregate)
		out = append(out, row)
	}
	return out
}

func reduce(rows []map[string]any, agg Aggregate) any {
	if agg.Func == "count" {
		if agg.Column == "*" {
			return int64(len(rows))
		}
		var n int64
		for _, r := range rows {
			if r[agg.Column] != nil {
				n++
			}
		}
		return n
	}

	var values []any
	for _, r := range rows {
		if v := r[agg.Column]; v != nil {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil
	}
	switch agg.Func {
	case "sum", "avg":
		var total float64
		for _, v := range values {
			f, _ := toFloat(v)
			total += f
		}
		if agg.Func == "avg" {
			return total / float64(len(values))
		}
		return total
	case "min", "max":
		best := values[0]
		for _, v := range values[1:] {
			c, ok := compare(v, best)
			if !ok {
				continue
			}
			if (agg.Func == "min" && c < 0) || (agg.Func == "max" && c > 0) {
				best = v
			}
		}
		return best
	}
	return nil
}
