package intent

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindBalance          Kind = "balance_query"
	KindApplyLeave       Kind = "apply_leave"
	KindLeaveStatus      Kind = "leave_status"
	KindPendingApprovals Kind = "pending_approvals"
	KindDecideLeave      Kind = "decide_leave"
	KindOpenQuery        Kind = "open_query"
)

// Intent is a closed set; only the types in this file implement it.
type Intent interface {
	Kind() Kind
	sealed()
}

// BalanceQuery asks for a leave balance. Subject is the employee id being asked about.
type BalanceQuery struct {
	Subject string
}

type ApplyLeave struct {
	Start  time.Time
	End    time.Time
	Reason string
}

type LeaveStatus struct{}

type PendingApprovals struct{}

type DecideLeave struct {
	RequestID int64
	Decision  string
}

type Target string

const (
	TargetData   Target = "DATA"
	TargetPolicy Target = "POLICY"
	TargetBoth   Target = "BOTH"
)

type OpenQuery struct {
	Text   string
	Target Target
}

func (BalanceQuery) Kind() Kind     { return KindBalance }
func (ApplyLeave) Kind() Kind       { return KindApplyLeave }
func (LeaveStatus) Kind() Kind      { return KindLeaveStatus }
func (PendingApprovals) Kind() Kind { return KindPendingApprovals }
func (DecideLeave) Kind() Kind      { return KindDecideLeave }
func (OpenQuery) Kind() Kind        { return KindOpenQuery }

func (BalanceQuery) sealed()     {}
func (ApplyLeave) sealed()       {}
func (LeaveStatus) sealed()      {}
func (PendingApprovals) sealed() {}
func (DecideLeave) sealed()      {}
func (OpenQuery) sealed()        {}

// SlotParseError reports a recognized request whose slot could not be parsed.
// It is user-correctable, not a server fault.
type SlotParseError struct {
	Field string
	Value string
}

func (e *SlotParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("could not parse %s %q", e.Field, e.Value)
}
