package leave

import "time"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

type LeaveRequest struct {
	ID         int64      `json:"id"`
	EmployeeID string     `json:"employeeId"`
	StartDate  time.Time  `json:"startDate"`
	EndDate    time.Time  `json:"endDate"`
	Days       int        `json:"days"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
	DecidedBy  string     `json:"decidedBy,omitempty"`
}

// PendingItem is a pending request with the requester's display fields joined in.
type PendingItem struct {
	LeaveRequest
	Name       string `json:"name"`
	Department string `json:"department"`
}

type ApplyInput struct {
	EmployeeID string
	Start      time.Time
	End        time.Time
	// Days overrides the inclusive span when set.
	Days   *int
	Reason string
}

type DecideInput struct {
	RequestID int64
	Decision  string
	// Note is free text recorded in the audit detail, such as the hr_actor display name.
	Note string
}

// Totals are day counts per status, overall and for one month window.
type Totals struct {
	PendingDays       int
	ApprovedDays      int
	MonthPendingDays  int
	MonthApprovedDays int
}

type BalanceSummary struct {
	EmployeeID        string  `json:"employeeId"`
	Name              string  `json:"name"`
	Balance           float64 `json:"balance"`
	PendingDays       int     `json:"pendingDays"`
	ApprovedDays      int     `json:"approvedDays"`
	Month             string  `json:"month"`
	MonthPendingDays  int     `json:"monthPendingDays"`
	MonthApprovedDays int     `json:"monthApprovedDays"`
}
