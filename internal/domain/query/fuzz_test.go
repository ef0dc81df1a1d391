package query

import (
	"errors"
	"testing"

	"hrassist/internal/domain/identity"
)

func FuzzParsePlan(f *testing.F) {
	f.Add(`{"table":"identities","columns":["name"],"filters":[{"column":"id","op":"=","value":"1001"}]}`)
	f.Add("```json\n{\"table\":\"leave_requests\",\"aggregate\":{\"func\":\"count\",\"column\":\"*\"}}\n```")
	f.Add(`{"table":"identities","columns":["name"],"limit":-1}`)
	f.Add(`not json`)

	f.Fuzz(func(t *testing.T, raw string) {
		p, err := ParsePlan(raw)
		if err != nil {
			if !errors.Is(err, ErrInvalidPlan) {
				t.Fatalf("expected ErrInvalidPlan, got %v", err)
			}
			return
		}
		_, _ = ValidatePlan(p, mustSchema(t), staff)
	})
}

// FuzzValidatePlan checks that a plan accepted for a staff caller always carries the
// caller's identity predicate and stays within the row limit.
func FuzzValidatePlan(f *testing.F) {
	f.Add("identities", "name", "id", "=", "1001", 10)
	f.Add("identities", "monthly_income", "department", "=", "Sales", 0)
	f.Add("leave_requests", "status", "employee_id", "=", "1001", 500)
	f.Add("leave_requests", "days", "employee_id", "like", "%", 5)
	f.Add("identities", "name", "id", "in", "1001", 1)

	schema := mustSchema(f)
	f.Fuzz(func(t *testing.T, table, column, filterColumn, op, value string, limit int) {
		caller := identity.Caller{ID: "1001", Role: identity.RoleStaff}
		p := Plan{
			Table:   table,
			Columns: []string{column},
			Filters: []Filter{{Column: filterColumn, Op: op, Value: value}},
			Limit:   limit,
		}
		got, err := ValidatePlan(p, schema, caller)
		if err != nil {
			if !errors.Is(err, ErrInvalidPlan) && !errors.Is(err, ErrScopeViolation) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		if got.Limit < 1 || got.Limit > schema.MaxLimit {
			t.Fatalf("limit %d escaped validation", got.Limit)
		}
		identityColumn := schema.Tables[got.Table].IdentityColumn
		if !hasIdentityPredicate(got, identityColumn, caller.ID) {
			t.Fatalf("accepted plan without identity predicate: %+v", got)
		}
		sql, args := Compile(got)
		if len(args) != len(got.Filters) {
			t.Fatalf("expected %d bind args, got %d for %s", len(got.Filters), len(args), sql)
		}
	})
}
