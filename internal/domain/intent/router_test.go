package intent

import (
	"context"
	"errors"
	"testing"

	"hrassist/internal/domain/identity"
	"hrassist/internal/platform/llm"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Complete(context.Context, llm.Prompt) (string, error) {
	s.calls++
	return s.reply, s.err
}

var (
	staff = identity.Caller{ID: "1001", Role: identity.RoleStaff}
	admin = identity.Caller{ID: "hr", Role: identity.RoleAdmin}
)

func TestExtractDeterministicIntents(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		caller identity.Caller
		want   Intent
	}{
		{name: "balance", text: "What is my leave balance?", caller: staff, want: BalanceQuery{Subject: "1001"}},
		{name: "leaves left", text: "how many leaves do I have left", caller: staff, want: BalanceQuery{Subject: "1001"}},
		{name: "admin subject", text: "leave balance of 1002", caller: admin, want: BalanceQuery{Subject: "1002"}},
		{name: "admin no subject", text: "remaining leave", caller: admin, want: BalanceQuery{}},
		{name: "staff names other", text: "leaves left for employee 1002", caller: staff, want: BalanceQuery{Subject: "1002"}},
		{name: "status", text: "show my leave requests", caller: staff, want: LeaveStatus{}},
		{name: "history", text: "leave history please", caller: staff, want: LeaveStatus{}},
		{name: "pending", text: "list pending leave requests", caller: admin, want: PendingApprovals{}},
		{name: "pending approvals", text: "any pending approvals?", caller: admin, want: PendingApprovals{}},
		{name: "approve", text: "approve leave request 12", caller: admin, want: DecideLeave{RequestID: 12, Decision: "APPROVED"}},
		{name: "reject", text: "Reject #7", caller: admin, want: DecideLeave{RequestID: 7, Decision: "REJECTED"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.text, tc.caller)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestExtractApplyLeave(t *testing.T) {
	tests := []struct {
		text       string
		start, end string
		reason     string
	}{
		{text: "apply leave from 2025-11-10 to 2025-11-12 for family function", start: "2025-11-10", end: "2025-11-12", reason: "family function"},
		{text: "Apply for leave 10-11-2025 until 12-11-2025", start: "2025-11-10", end: "2025-11-12", reason: DefaultReason},
		{text: "apply leave 2025-11-10 - 2025-11-11 because doctor visit.", start: "2025-11-10", end: "2025-11-11", reason: "doctor visit"},
		{text: "please apply leave from 2025-12-01 till 2025-12-03 reason: travel", start: "2025-12-01", end: "2025-12-03", reason: "travel"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			got, err := Extract(tc.text, staff)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			apply, ok := got.(ApplyLeave)
			if !ok {
				t.Fatalf("expected ApplyLeave, got %#v", got)
			}
			if apply.Start.Format("2006-01-02") != tc.start || apply.End.Format("2006-01-02") != tc.end {
				t.Fatalf("unexpected dates %v %v", apply.Start, apply.End)
			}
			if apply.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, apply.Reason)
			}
		})
	}
}

func TestExtractApplySlotErrors(t *testing.T) {
	tests := []struct {
		text  string
		field string
		value string
	}{
		{text: "apply leave from tomorrow to friday", field: "start_date", value: "tomorrow"},
		{text: "apply leave from 2025-11-10", field: "end_date", value: ""},
		{text: "apply leave from 2025-11-10 to 2025/11/12", field: "end_date", value: "2025/11/12"},
		{text: "apply leave from 2025-13-01 to 2025-11-12", field: "start_date", value: "2025-13-01"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			_, err := Extract(tc.text, staff)
			var slotErr *SlotParseError
			if !errors.As(err, &slotErr) {
				t.Fatalf("expected SlotParseError, got %v", err)
			}
			if slotErr.Field != tc.field || slotErr.Value != tc.value {
				t.Fatalf("expected %s=%q, got %s=%q", tc.field, tc.value, slotErr.Field, slotErr.Value)
			}
		})
	}
}

func TestProcedureQuestionIsNotAnApplication(t *testing.T) {
	got, err := Extract("How do I apply for leave?", staff)
	if err != nil || got != nil {
		t.Fatalf("expected no deterministic match, got %#v %v", got, err)
	}
}

func TestRouteFallsBackToClassifier(t *testing.T) {
	gen := &stubGenerator{reply: "  data\n"}
	router := NewRouter(gen, nil)
	got, err := router.Route(context.Background(), "what is my department?", staff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := OpenQuery{Text: "what is my department?", Target: TargetData}
	if got != want {
		t.Fatalf("expected %#v, got %#v", want, got)
	}

	if _, err := router.Route(context.Background(), "leave balance", staff); err != nil || gen.calls != 1 {
		t.Fatalf("expected deterministic route without a model call, calls=%d err=%v", gen.calls, err)
	}
}

func TestRouteProviderFailure(t *testing.T) {
	router := NewRouter(&stubGenerator{err: errors.New("timeout")}, nil)
	_, err := router.Route(context.Background(), "what is the dress code?", staff)
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	tests := map[string]Target{
		"DATA":          TargetData,
		"policy":        TargetPolicy,
		"Both.":         TargetBoth,
		"I am not sure": TargetPolicy,
	}
	for reply, want := range tests {
		if got := ParseTarget(reply); got != want {
			t.Fatalf("expected %s for %q, got %s", want, reply, got)
		}
	}
}
