package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestValidatorIssuesSorted(t *testing.T) {
	v := NewValidator()
	days := 0
	v.AtLeast("days", &days, 1)
	v.PositiveID("request_id", 0)
	v.Count("rows", 0, 1, 10)
	v.Required("reason", " ", "is required")
	v.AtLeast("ignored", nil, 1)

	issues := v.Issues()
	want := []string{"days", "reason", "request_id", "rows"}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %+v", len(want), issues)
	}
	for i, field := range want {
		if issues[i].Field != field {
			t.Fatalf("expected field %q at %d, got %+v", field, i, issues)
		}
	}
}

func TestValidatorPage(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantIssue  string
	}{
		{name: "defaults", query: "", wantLimit: 20},
		{name: "explicit", query: "limit=5&offset=10", wantLimit: 5, wantOffset: 10},
		{name: "clamped", query: "limit=900", wantLimit: 100},
		{name: "bad limit", query: "limit=abc", wantLimit: 20, wantIssue: "limit"},
		{name: "negative offset", query: "offset=-1", wantLimit: 20, wantIssue: "offset"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			v := NewValidator()
			page := v.Page(q, 20, 100)
			if page.Limit != tc.wantLimit || page.Offset != tc.wantOffset {
				t.Fatalf("expected %d/%d, got %+v", tc.wantLimit, tc.wantOffset, page)
			}
			issues := v.Issues()
			if tc.wantIssue == "" && len(issues) != 0 {
				t.Fatalf("expected no issues, got %+v", issues)
			}
			if tc.wantIssue != "" && (len(issues) != 1 || issues[0].Field != tc.wantIssue) {
				t.Fatalf("expected issue on %s, got %+v", tc.wantIssue, issues)
			}
		})
	}
}

func TestValidatorCursor(t *testing.T) {
	v := NewValidator()
	if got := v.Cursor(url.Values{"after": {"42"}}, "after"); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := v.Cursor(url.Values{}, "after"); got != 0 || v.HasIssues() {
		t.Fatalf("expected absent cursor to be 0 without issues")
	}
	v.Cursor(url.Values{"after": {"x"}}, "after")
	if !v.HasIssues() {
		t.Fatalf("expected malformed cursor to be reported")
	}
}

func TestRejectWritesFieldDetails(t *testing.T) {
	v := NewValidator()
	v.Add("start_date", "must be a valid date")
	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatalf("expected reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "validation_error" || len(body.Error.Details.Fields) != 1 || body.Error.Details.Fields[0].Field != "start_date" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
