package handlers_test

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/leave"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/platform/config"
)

func TestLeaveJourneyMemory(t *testing.T) {
	runLeaveJourney(t, testConfig(config.StoreMemory, ""))
}

func TestLeaveJourneyPostgres(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	runLeaveJourney(t, testConfig(config.StorePostgres, dbURL))
}

func runLeaveJourney(t *testing.T, cfg config.Config) {
	ts, client := startServer(t, cfg)
	adminToken := login(t, client, ts.URL, "ADMIN", "")

	employeeID := fmt.Sprintf("E%d", time.Now().UnixNano()%1_000_000_000)
	importEmployee(t, client, ts.URL, adminToken, employeeID, 20)
	staffToken := login(t, client, ts.URL, "STAFF", employeeID)

	created := postJSONStatus(t, client, ts.URL+"/api/v1/leave/apply", staffToken, map[string]any{
		"start_date": "2025-11-10",
		"end_date":   "12-11-2025",
		"reason":     "family event",
	}, http.StatusCreated)
	var applied struct {
		Request leave.LeaveRequest `json:"request"`
	}
	decodeData(t, created, &applied)
	req := applied.Request
	if req.Days != 3 || req.Status != leave.StatusPending || req.EmployeeID != employeeID {
		t.Fatalf("unexpected leave request %+v", req)
	}

	adminFeed := listFeed(t, client, ts.URL+"/api/v1/notifications/"+cfg.AdminIdentityKey+"?role=ADMIN", adminToken)
	if !hasNotification(adminFeed, notifications.KindLeaveSubmitted, employeeID) {
		t.Fatalf("expected a broadcast notification for %s, got %+v", employeeID, adminFeed)
	}

	decideURL := ts.URL + "/api/v1/leave/decide"
	decision := map[string]any{"request_id": req.ID, "decision": "APPROVED", "hr_actor": "Priya"}
	postJSONStatus(t, client, decideURL, staffToken, decision, http.StatusForbidden)

	decided := postJSON(t, client, decideURL, adminToken, decision)
	var outcome struct {
		Request leave.LeaveRequest `json:"request"`
		Message string             `json:"message"`
	}
	decodeData(t, decided, &outcome)
	if outcome.Request.Status != leave.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", outcome.Request.Status)
	}
	if want := "Request " + strconv.FormatInt(req.ID, 10) + " approved"; outcome.Message != want {
		t.Fatalf("expected message %q, got %q", want, outcome.Message)
	}

	conflict := postJSONStatus(t, client, decideURL, adminToken, map[string]any{"request_id": req.ID, "decision": "REJECTED"}, http.StatusConflict)
	if code := envelopeErrorCode(conflict); code != "already_decided" {
		t.Fatalf("expected already_decided, got %q", code)
	}

	long := postJSONStatus(t, client, ts.URL+"/api/v1/leave/apply", staffToken, map[string]any{
		"start_date": "2025-12-01",
		"end_date":   "2025-12-20",
		"reason":     "long trip",
	}, http.StatusCreated)
	var longApplied struct {
		Request leave.LeaveRequest `json:"request"`
	}
	decodeData(t, long, &longApplied)
	short := postJSONStatus(t, client, decideURL, adminToken, map[string]any{"request_id": longApplied.Request.ID, "decision": "APPROVED"}, http.StatusConflict)
	if code := envelopeErrorCode(short); code != "insufficient_balance" {
		t.Fatalf("expected insufficient_balance, got %q", code)
	}

	var balance leave.BalanceSummary
	decodeData(t, getJSON(t, client, ts.URL+"/api/v1/leave/balance/"+employeeID, staffToken), &balance)
	if balance.Balance != 17 || balance.ApprovedDays != 3 {
		t.Fatalf("expected 17 days left after 3 approved, got %+v", balance)
	}

	staffFeed := listFeed(t, client, ts.URL+"/api/v1/notifications/"+employeeID, staffToken)
	approvals := 0
	for _, n := range staffFeed {
		if n.Kind == notifications.KindLeaveApproved {
			approvals++
		}
	}
	if approvals != 1 {
		t.Fatalf("expected exactly one approval notification, got %+v", staffFeed)
	}

	getJSONStatus(t, client, ts.URL+"/api/v1/notifications/"+cfg.AdminIdentityKey+"?role=ADMIN", staffToken, http.StatusForbidden)
	getJSONStatus(t, client, ts.URL+"/api/v1/audit", staffToken, http.StatusForbidden)

	var entries []audit.Entry
	target := "leave_request:" + strconv.FormatInt(req.ID, 10)
	decodeData(t, getJSON(t, client, ts.URL+"/api/v1/audit?action="+audit.ActionLeaveDecide+"&target="+target, adminToken), &entries)
	if len(entries) != 1 {
		t.Fatalf("expected one decide audit entry, got %d", len(entries))
	}
}

func TestChatJourney(t *testing.T) {
	cfg := testConfig(config.StoreMemory, "")
	ts, client := startServer(t, cfg)
	adminToken := login(t, client, ts.URL, "ADMIN", "")
	importEmployee(t, client, ts.URL, adminToken, "1002", 12)
	staffToken := login(t, client, ts.URL, "STAFF", "1002")

	chat := func(token, text string) map[string]any {
		t.Helper()
		return flatJSON(t, client, http.MethodPost, ts.URL+"/api/v1/chat/message", token, map[string]any{"text": text}, http.StatusOK)
	}

	applied := chat(staffToken, "apply leave from 2025-11-10 to 2025-11-12 for a wedding")
	msg, _ := applied["message"].(string)
	if applied["success"] != true || !strings.Contains(msg, "3 day(s)") {
		t.Fatalf("expected a 3 day submission, got %+v", applied)
	}

	pending := chat(adminToken, "show pending leave requests")
	if msg, _ := pending["message"].(string); !strings.Contains(msg, "1002") {
		t.Fatalf("expected pending list to name 1002, got %+v", pending)
	}

	approved := chat(adminToken, "approve request 1")
	if msg, _ := approved["message"].(string); !strings.Contains(msg, "approved") {
		t.Fatalf("expected approval reply, got %+v", approved)
	}
	again := chat(adminToken, "approve request 1")
	if again["success"] != false {
		t.Fatalf("expected second approval to fail, got %+v", again)
	}

	balance := chat(staffToken, "what is my leave balance?")
	if msg, _ := balance["message"].(string); !strings.Contains(msg, "9 day(s) of leave remaining") {
		t.Fatalf("expected 9 days remaining, got %+v", balance)
	}

	denied := chat(staffToken, "approve request 1")
	if denied["success"] != false {
		t.Fatalf("expected staff approval to be refused, got %+v", denied)
	}

	mismatch := flatJSON(t, client, http.MethodPost, ts.URL+"/api/v1/chat/message", staffToken,
		map[string]any{"text": "hello", "employee_id": "9999"}, http.StatusForbidden)
	if mismatch["success"] != false {
		t.Fatalf("expected mismatch rejection, got %+v", mismatch)
	}

	flatJSON(t, client, http.MethodPost, ts.URL+"/api/v1/chat/message", "", map[string]any{"text": "hello"}, http.StatusUnauthorized)
}

func TestPolicyJourney(t *testing.T) {
	cfg := testConfig(config.StoreMemory, "")
	ts, client := startServer(t, cfg)
	adminToken := login(t, client, ts.URL, "ADMIN", "")
	importEmployee(t, client, ts.URL, adminToken, "2001", 10)
	staffToken := login(t, client, ts.URL, "STAFF", "2001")

	postJSONStatus(t, client, ts.URL+"/api/v1/policy/documents", staffToken, map[string]any{
		"name": "leave-policy", "text": "maternity leave is 26 weeks paid",
	}, http.StatusForbidden)
	postJSONStatus(t, client, ts.URL+"/api/v1/policy/documents", adminToken, map[string]any{
		"name": "leave-policy", "text": "maternity leave is 26 weeks paid",
	}, http.StatusCreated)

	var answer struct {
		Found  bool   `json:"found"`
		Answer string `json:"answer"`
	}
	decodeData(t, postJSON(t, client, ts.URL+"/api/v1/policy/ask", staffToken, map[string]any{
		"question": "what is the maternity leave policy?",
	}), &answer)
	if !answer.Found || !strings.Contains(answer.Answer, "26 weeks") {
		t.Fatalf("expected grounded answer, got %+v", answer)
	}

	decodeData(t, postJSON(t, client, ts.URL+"/api/v1/policy/ask", staffToken, map[string]any{
		"question": "what is the dress code?",
	}), &answer)
	if answer.Found {
		t.Fatalf("expected not found, got %+v", answer)
	}

	reply := flatJSON(t, client, http.MethodPost, ts.URL+"/api/v1/chat/message", staffToken,
		map[string]any{"text": "How long is maternity leave?"}, http.StatusOK)
	if msg, _ := reply["message"].(string); !strings.Contains(msg, "26 weeks") {
		t.Fatalf("expected chat to answer from policy, got %+v", reply)
	}

	postJSONStatus(t, client, ts.URL+"/api/v1/policy/reindex", adminToken, nil, http.StatusAccepted)

	var status struct {
		Documents int `json:"documents"`
	}
	decodeData(t, getJSON(t, client, ts.URL+"/api/v1/policy/status", staffToken), &status)
	if status.Documents != 1 {
		t.Fatalf("expected one document, got %+v", status)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts, client := startServer(t, testConfig(config.StoreMemory, ""))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		status, raw := do(t, client, http.MethodGet, ts.URL+path, "", nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d: %s", path, status, string(raw))
		}
	}

	status, raw := do(t, client, http.MethodGet, ts.URL+"/api/v1/nope", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if code := envelopeErrorCode(decodeEnvelope(t, raw)); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}
}

func importEmployee(t *testing.T, client *http.Client, baseURL, token, id string, balance float64) {
	t.Helper()
	env := postJSON(t, client, baseURL+"/api/v1/dataset/identities", token, map[string]any{
		"rows": []map[string]any{{
			"id":            id,
			"role":          "STAFF",
			"name":          "Asha Rao",
			"email":         strings.ToLower(id) + "@test.local",
			"department":    "Engineering",
			"job_role":      "Engineer",
			"leave_balance": balance,
			"hire_date":     "2023-01-15",
		}},
	})
	var result struct {
		Imported int `json:"imported"`
	}
	decodeData(t, env, &result)
	if result.Imported != 1 {
		t.Fatalf("expected one imported row, got %d", result.Imported)
	}
}

func listFeed(t *testing.T, client *http.Client, url, token string) []notifications.Notification {
	t.Helper()
	var items []notifications.Notification
	decodeData(t, getJSON(t, client, url, token), &items)
	return items
}

func hasNotification(items []notifications.Notification, kind, mention string) bool {
	for _, n := range items {
		if n.Kind == kind && strings.Contains(n.Body, mention) {
			return true
		}
	}
	return false
}
