package leave

import (
	"context"
	"time"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/notifications"
)

// Effects builds the audit entry and notification for a persisted request. Stores call it
// inside the commit so both land with the state change or not at all.
type Effects func(req LeaveRequest) (audit.Entry, notifications.Notification)

type StoreAPI interface {
	Create(ctx context.Context, req LeaveRequest, effects Effects) (LeaveRequest, notifications.Notification, error)
	// Decide moves a PENDING request to status, decrementing the balance on approval.
	// It returns ErrNotFound, ErrWorkflowConflict or ErrInsufficientBalance without writing anything.
	Decide(ctx context.Context, id int64, status Status, actor string, effects Effects) (LeaveRequest, notifications.Notification, error)
	Get(ctx context.Context, id int64) (LeaveRequest, error)
	ListPending(ctx context.Context) ([]PendingItem, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error)
	// Totals counts days whose start date falls in [monthStart, monthEnd) separately from the overall totals.
	Totals(ctx context.Context, employeeID string, monthStart, monthEnd time.Time) (Totals, error)
}
