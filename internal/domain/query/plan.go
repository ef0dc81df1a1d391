package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hrassist/internal/domain/identity"
	"hrassist/internal/platform/llm"
)

var (
	// ErrScopeViolation means a non-admin plan lacks the caller's identity predicate.
	ErrScopeViolation = errors.New("query plan is not scoped to the caller")
	ErrInvalidPlan    = errors.New("invalid query plan")
)

const maxInValues = 50

// Plan is the structured query a model may ask for. All filters are ANDed together.
type Plan struct {
	Table     string     `json:"table"`
	Columns   []string   `json:"columns"`
	Filters   []Filter   `json:"filters"`
	Aggregate *Aggregate `json:"aggregate,omitempty"`
	GroupBy   []string   `json:"group_by,omitempty"`
	OrderBy   []Order    `json:"order_by,omitempty"`
	Limit     int        `json:"limit"`
}

type Filter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  any    `json:"value"`
}

type Aggregate struct {
	Func   string `json:"func"`
	Column string `json:"column"`
}

// Alias is the result column name of the aggregate.
func (a Aggregate) Alias() string {
	if a.Column == "*" || a.Column == "" {
		return a.Func
	}
	return a.Func + "_" + a.Column
}

type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// ParsePlan decodes model output into a Plan. Unknown fields and trailing data are rejected.
func ParsePlan(raw string) (Plan, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(llm.CleanJSON(raw))))
	dec.DisallowUnknownFields()
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if dec.More() {
		return Plan{}, fmt.Errorf("%w: trailing data", ErrInvalidPlan)
	}
	return p, nil
}

// ValidatePlan checks p against the allow-list and the caller's scope and returns the
// normalized plan that may be executed. It has no side effects.
func ValidatePlan(p Plan, schema Schema, caller identity.Caller) (Plan, error) {
	out := Plan{Table: normIdent(p.Table), Limit: p.Limit}
	table, ok := schema.Tables[out.Table]
	if !ok {
		return Plan{}, invalid("table %q is not allowed", p.Table)
	}

	for _, c := range p.Columns {
		name := normIdent(c)
		if _, ok := table.Columns[name]; !ok {
			return Plan{}, invalid("column %q is not allowed", c)
		}
		out.Columns = append(out.Columns, name)
	}

	for _, f := range p.Filters {
		nf, err := validateFilter(f, out.Table, schema)
		if err != nil {
			return Plan{}, err
		}
		out.Filters = append(out.Filters, nf)
	}

	for _, g := range p.GroupBy {
		name := normIdent(g)
		if _, ok := table.Columns[name]; !ok {
			return Plan{}, invalid("group_by column %q is not allowed", g)
		}
		out.GroupBy = append(out.GroupBy, name)
	}

	if p.Aggregate != nil {
		agg := Aggregate{Func: normIdent(p.Aggregate.Func), Column: normIdent(p.Aggregate.Column)}
		if !schema.allowsAggregate(agg.Func) {
			return Plan{}, invalid("aggregate %q is not allowed", p.Aggregate.Func)
		}
		if agg.Column == "" || agg.Column == "*" {
			if agg.Func != "count" {
				return Plan{}, invalid("%s needs a column", agg.Func)
			}
			agg.Column = "*"
		} else {
			col, ok := table.Columns[agg.Column]
			if !ok {
				return Plan{}, invalid("aggregate column %q is not allowed", p.Aggregate.Column)
			}
			if (agg.Func == "sum" || agg.Func == "avg") && col.Type != TypeNumber {
				return Plan{}, invalid("%s needs a numeric column", agg.Func)
			}
		}
		for _, c := range out.Columns {
			if !contains(out.GroupBy, c) {
				return Plan{}, invalid("column %q must appear in group_by", c)
			}
		}
		out.Aggregate = &agg
	} else {
		if len(out.GroupBy) > 0 {
			return Plan{}, invalid("group_by needs an aggregate")
		}
		if len(out.Columns) == 0 {
			return Plan{}, invalid("no columns selected")
		}
	}

	for _, o := range p.OrderBy {
		name := normIdent(o.Column)
		_, isColumn := table.Columns[name]
		isAlias := out.Aggregate != nil && name == out.Aggregate.Alias()
		if !isColumn && !isAlias {
			return Plan{}, invalid("order_by column %q is not allowed", o.Column)
		}
		if out.Aggregate != nil && isColumn && !contains(out.GroupBy, name) {
			return Plan{}, invalid("order_by column %q must appear in group_by", o.Column)
		}
		out.OrderBy = append(out.OrderBy, Order{Column: name, Desc: o.Desc})
	}

	switch {
	case out.Limit == 0:
		out.Limit = schema.DefaultLimit
	case out.Limit < 0 || out.Limit > schema.MaxLimit:
		return Plan{}, invalid("limit must be between 1 and %d", schema.MaxLimit)
	}

	if !caller.IsAdmin() {
		if !hasIdentityPredicate(out, table.IdentityColumn, caller.ID) {
			return Plan{}, fmt.Errorf("%w: %s must be filtered by %s = caller", ErrScopeViolation, out.Table, table.IdentityColumn)
		}
	}
	return out, nil
}

func validateFilter(f Filter, table string, schema Schema) (Filter, error) {
	name := normIdent(f.Column)
	col, ok := schema.column(table, name)
	if !ok {
		return Filter{}, invalid("filter column %q is not allowed", f.Column)
	}
	op := strings.ToLower(strings.TrimSpace(f.Op))
	if !schema.allowsOperator(op) {
		return Filter{}, invalid("operator %q is not allowed", f.Op)
	}
	out := Filter{Column: name, Op: op}

	switch op {
	case "in":
		items, ok := f.Value.([]any)
		if !ok || len(items) == 0 || len(items) > maxInValues {
			return Filter{}, invalid("in on %s needs 1 to %d values", name, maxInValues)
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			v, err := coerce(item, col.Type)
			if err != nil {
				return Filter{}, invalid("filter %s: %v", name, err)
			}
			values = append(values, v)
		}
		out.Value = values
	case "like":
		s, ok := f.Value.(string)
		if !ok || col.Type != TypeText || strings.TrimSpace(s) == "" {
			return Filter{}, invalid("like on %s needs a text column and pattern", name)
		}
		out.Value = s
	default:
		v, err := coerce(f.Value, col.Type)
		if err != nil {
			return Filter{}, invalid("filter %s: %v", name, err)
		}
		out.Value = v
	}
	return out, nil
}

// hasIdentityPredicate looks for a top-level "identity_column = caller" filter. Filters are
// conjunctive, so such a predicate bounds every returned row to the caller.
func hasIdentityPredicate(p Plan, column, callerID string) bool {
	if callerID == "" {
		return false
	}
	for _, f := range p.Filters {
		if f.Column == column && f.Op == "=" {
			if s, ok := f.Value.(string); ok && s == callerID {
				return true
			}
		}
	}
	return false
}

// coerce converts a decoded JSON scalar to the Go type the executors compare with:
// string for text, float64 for number, time.Time for date and timestamp.
func coerce(v any, t ColumnType) (any, error) {
	switch t {
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
	case TypeNumber:
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return f, nil
			}
		}
	case TypeDate, TypeTimestamp:
		if s, ok := v.(string); ok {
			if tm, ok := parseTime(s); ok {
				return tm, nil
			}
		}
	}
	return nil, fmt.Errorf("value %v is not a valid %s", v, t)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02", "02-01-2006"}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if tm, err := time.Parse(layout, s); err == nil {
			return tm, true
		}
	}
	return time.Time{}, false
}

func normIdent(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlan, fmt.Sprintf(format, args...))
}
