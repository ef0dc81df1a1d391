package query

import (
	"testing"
	"time"
)

func TestCompile(t *testing.T) {
	schema := mustSchema(t)

	cases := []struct {
		name     string
		plan     Plan
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "select with filters",
			plan:     Plan{Table: "identities", Columns: []string{"name", "monthly_income"}, Filters: []Filter{{Column: "id", Op: "=", Value: "1001"}, {Column: "name", Op: "like", Value: "%doe%"}}},
			wantSQL:  `SELECT "name", "monthly_income" FROM "identities" WHERE "id" = $1 AND "name" ILIKE $2 LIMIT 50`,
			wantArgs: 2,
		},
		{
			name:     "aggregate grouped and ordered",
			plan:     Plan{Table: "identities", Columns: []string{"department"}, Aggregate: &Aggregate{Func: "count"}, GroupBy: []string{"department"}, OrderBy: []Order{{Column: "count", Desc: true}}, Limit: 10},
			wantSQL:  `SELECT "department", COUNT(*) AS "count" FROM "identities" GROUP BY "department" ORDER BY "count" DESC LIMIT 10`,
			wantArgs: 0,
		},
		{
			name:     "in list",
			plan:     Plan{Table: "leave_requests", Columns: []string{"id"}, Filters: []Filter{{Column: "status", Op: "in", Value: []any{"PENDING", "APPROVED"}}}},
			wantSQL:  `SELECT "id" FROM "leave_requests" WHERE "status" = ANY($1) LIMIT 50`,
			wantArgs: 1,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			valid, err := ValidatePlan(tc.plan, schema, admin)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			sql, args := Compile(valid)
			if sql != tc.wantSQL {
				t.Fatalf("expected %q, got %q", tc.wantSQL, sql)
			}
			if len(args) != tc.wantArgs {
				t.Fatalf("expected %d args, got %d", tc.wantArgs, len(args))
			}
		})
	}
}

func TestTypedSlice(t *testing.T) {
	if got, ok := typedSlice([]any{"a", "b"}).([]string); !ok || len(got) != 2 {
		t.Fatalf("expected []string, got %#v", got)
	}
	if got, ok := typedSlice([]any{1.0}).([]float64); !ok || got[0] != 1 {
		t.Fatalf("expected []float64, got %#v", got)
	}
	if _, ok := typedSlice([]any{time.Now()}).([]time.Time); !ok {
		t.Fatalf("expected []time.Time")
	}
}
