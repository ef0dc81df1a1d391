package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/intent"
	"hrassist/internal/platform/llm"
	"hrassist/internal/platform/metrics"
)

const historyLimit = 20

// Result is what a structured lookup hands back to the assistant.
type Result struct {
	Message string `json:"message"`
	Rows    Rows   `json:"rows"`
}

type Engine struct {
	schema  Schema
	exec    Executor
	gen     llm.Generator
	audit   audit.Recorder
	metrics *metrics.Collector
	now     func() time.Time
}

func NewEngine(schema Schema, exec Executor, gen llm.Generator, recorder audit.Recorder, m *metrics.Collector) *Engine {
	return &Engine{
		schema:  schema,
		exec:    exec,
		gen:     gen,
		audit:   recorder,
		metrics: m,
		now:     time.Now,
	}
}

// Answer resolves a data intent for caller. Only BalanceQuery, LeaveStatus and OpenQuery are handled here.
func (e *Engine) Answer(ctx context.Context, in intent.Intent, caller identity.Caller) (Result, error) {
	switch v := in.(type) {
	case intent.BalanceQuery:
		return e.Balance(ctx, v.Subject, caller)
	case intent.LeaveStatus:
		return e.History(ctx, caller.ID, caller)
	case intent.OpenQuery:
		return e.Open(ctx, v.Text, caller)
	}
	return Result{}, fmt.Errorf("query engine cannot answer %s", in.Kind())
}

// Balance reports the remaining leave of subject with this month's approved and pending days.
func (e *Engine) Balance(ctx context.Context, subject string, caller identity.Caller) (Result, error) {
	if subject == "" {
		if caller.IsAdmin() {
			return Result{Message: "Please specify the employee id, for example: leave balance of 1002."}, nil
		}
		subject = caller.ID
	}

	balance, err := e.run(ctx, Plan{
		Table:   "identities",
		Columns: []string{"id", "name", "leave_balance"},
		Filters: []Filter{{Column: "id", Op: "=", Value: subject}},
		Limit:   1,
	}, caller)
	if err != nil {
		return Result{}, err
	}
	if len(balance.Values) == 0 {
		return Result{Message: fmt.Sprintf("No employee found with id %s.", subject), Rows: balance}, nil
	}

	monthStart := time.Date(e.now().UTC().Year(), e.now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	month, err := e.run(ctx, Plan{
		Table:   "leave_requests",
		Columns: []string{"status"},
		Filters: []Filter{
			{Column: "employee_id", Op: "=", Value: subject},
			{Column: "start_date", Op: ">=", Value: monthStart.Format("2006-01-02")},
			{Column: "start_date", Op: "<=", Value: monthEnd.Format("2006-01-02")},
		},
		Aggregate: &Aggregate{Func: "sum", Column: "days"},
		GroupBy:   []string{"status"},
	}, caller)
	if err != nil {
		return Result{}, err
	}

	row := balance.Values[0]
	name, _ := row[1].(string)
	if name == "" {
		name = subject
	}
	left, _ := toFloat(row[2])
	var approved, pending float64
	for _, r := range month.Values {
		days, _ := toFloat(r[1])
		switch r[0] {
		case "APPROVED":
			approved = days
		case "PENDING":
			pending = days
		}
	}

	msg := fmt.Sprintf("%s (%s) has %s day(s) of leave remaining. This month (%s): %s day(s) approved, %s day(s) pending.",
		name, subject, formatNumber(left), monthStart.Format("January 2006"), formatNumber(approved), formatNumber(pending))
	return Result{Message: msg, Rows: balance}, nil
}

// History lists the most recent leave requests of employeeID.
func (e *Engine) History(ctx context.Context, employeeID string, caller identity.Caller) (Result, error) {
	rows, err := e.run(ctx, Plan{
		Table:   "leave_requests",
		Columns: []string{"id", "start_date", "end_date", "days", "status", "reason"},
		Filters: []Filter{{Column: "employee_id", Op: "=", Value: employeeID}},
		OrderBy: []Order{{Column: "id", Desc: true}},
		Limit:   historyLimit,
	}, caller)
	if err != nil {
		return Result{}, err
	}
	if len(rows.Values) == 0 {
		return Result{Message: "You have no leave requests yet.", Rows: rows}, nil
	}

	var b strings.Builder
	b.WriteString("Your leave requests:")
	for _, r := range rows.Values {
		fmt.Fprintf(&b, "\n• #%s %s to %s, %s day(s), %s", formatValue(r[0]), formatValue(r[1]), formatValue(r[2]), formatValue(r[3]), formatValue(r[4]))
	}
	return Result{Message: b.String(), Rows: rows}, nil
}

const plannerSystem = `You translate HR questions into a JSON query plan. Reply with JSON only, no prose.
Shape: {"table": "...", "columns": ["..."], "filters": [{"column": "...", "op": "...", "value": ...}],
"aggregate": {"func": "...", "column": "..."}, "group_by": ["..."], "order_by": [{"column": "...", "desc": false}], "limit": 50}
Omit aggregate, group_by and order_by when they are not needed. Filters are combined with AND.
Only use these tables, columns, operators and aggregates:
`

const summarySystem = `You answer an HR question using only the query result rows given.
Be brief and factual. Do not invent values. If the rows are empty say that no matching records were found.`

// Open plans, validates, executes and summarizes a free-text data question.
func (e *Engine) Open(ctx context.Context, question string, caller identity.Caller) (Result, error) {
	if e.gen == nil {
		return Result{}, fmt.Errorf("%w: no planner configured", llm.ErrProviderUnavailable)
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n", question)
	if caller.IsAdmin() {
		user.WriteString("The caller is an HR administrator and may read every row.\n")
	} else {
		fmt.Fprintf(&user, "The caller is employee %q. Every plan MUST include the filter {\"column\": <identity column>, \"op\": \"=\", \"value\": %q}.\n", caller.ID, caller.ID)
	}
	if hints := ColumnHints(question); len(hints) > 0 {
		fmt.Fprintf(&user, "Column hints: %s\n", strings.Join(hints, ", "))
	}

	raw, err := e.gen.Complete(ctx, llm.Prompt{System: plannerSystem + e.schema.Describe(), User: user.String(), MaxTokens: 400})
	if err != nil {
		return Result{}, fmt.Errorf("%w: plan: %v", llm.ErrProviderUnavailable, err)
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		zap.L().Warn("unparsable query plan", zap.String("caller", caller.ID), zap.Error(err))
		return Result{}, err
	}

	rows, err := e.run(ctx, plan, caller)
	if err != nil {
		return Result{}, err
	}
	return Result{Message: e.summarize(ctx, question, rows), Rows: rows}, nil
}

// run validates p against the allow-list and caller scope before executing it.
func (e *Engine) run(ctx context.Context, p Plan, caller identity.Caller) (Rows, error) {
	valid, err := ValidatePlan(p, e.schema, caller)
	if err != nil {
		if errors.Is(err, ErrScopeViolation) {
			e.recordViolation(ctx, p, caller, err)
		}
		return Rows{}, err
	}
	return e.exec.Execute(ctx, valid)
}

func (e *Engine) recordViolation(ctx context.Context, p Plan, caller identity.Caller, cause error) {
	e.metrics.ScopeViolation()
	zap.L().Warn("query scope violation",
		zap.String("caller", caller.ID),
		zap.String("table", p.Table),
		zap.Error(cause),
	)
	if e.audit == nil || caller.ID == "" {
		return
	}
	entry := audit.NewEntry(ctx, caller.ID, audit.ActionScopeViolation, p.Table, map[string]any{
		"role":    caller.Role,
		"plan":    p,
		"message": cause.Error(),
	})
	if err := e.audit.Record(ctx, entry); err != nil {
		zap.L().Error("record scope violation", zap.Error(err))
	}
}

func (e *Engine) summarize(ctx context.Context, question string, rows Rows) string {
	if len(rows.Values) == 0 {
		return noRows
	}
	table := RenderTable(rows)
	if e.gen == nil {
		return table
	}
	out, err := e.gen.Complete(ctx, llm.Prompt{
		System:    summarySystem,
		User:      fmt.Sprintf("Question: %s\n\nRows:\n%s", question, table),
		MaxTokens: 300,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			zap.L().Warn("row summary unavailable, returning table", zap.Error(err))
		}
		return table
	}
	return strings.TrimSpace(out)
}

var columnHints = map[string]string{
	"salary":     "monthly_income",
	"income":     "monthly_income",
	"pay":        "monthly_income",
	"role":       "job_role",
	"title":      "job_role",
	"position":   "job_role",
	"boss":       "manager_id",
	"manager":    "manager_id",
	"dept":       "department",
	"department": "department",
	"team":       "department",
	"joined":     "hire_date",
	"email":      "email",
	"balance":    "leave_balance",
}

// ColumnHints maps everyday words in text to allow-listed columns, as "word → column".
func ColumnHints(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, word := range llm.Tokenize(text) {
		col, ok := columnHints[word]
		if !ok || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word+" → "+col)
	}
	sort.Strings(out)
	return out
}
