package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorExposesDomainCounters(t *testing.T) {
	c := New()
	c.Record(http.MethodPost, http.StatusCreated, 15*time.Millisecond)
	c.PolicyAnswer(false)
	c.Intent("DecideLeave")
	c.WorkflowConflict()
	c.ScopeViolation()
	c.OTPOutcome("consumed")
	c.ProviderFailure("embed")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, line := range []string{
		`hrassist_http_requests_total{method="POST",status="201"} 1`,
		`hrassist_policy_answers_total{outcome="not_found"} 1`,
		`hrassist_intents_total{kind="DecideLeave"} 1`,
		`hrassist_leave_conflicts_total 1`,
		`hrassist_query_scope_violations_total 1`,
		`hrassist_otp_verifications_total{outcome="consumed"} 1`,
		`hrassist_provider_failures_total{operation="embed"} 1`,
	} {
		if !strings.Contains(string(body), line) {
			t.Fatalf("expected %q in scrape output", line)
		}
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Record(http.MethodGet, http.StatusOK, time.Millisecond)
	c.WorkflowConflict()
	c.PolicyAnswer(true)
}
