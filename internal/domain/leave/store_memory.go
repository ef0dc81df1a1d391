package leave

import (
	"context"
	"errors"
	"sync"
	"time"

	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/notifications"
)

// MemoryStore keeps requests in process. Its lock is always taken before the
// identity, audit and notification stores it writes through.
type MemoryStore struct {
	mu         sync.RWMutex
	requests   []LeaveRequest
	identities *identity.MemoryStore
	audit      *audit.MemoryLog
	notes      *notifications.MemoryStore
}

func NewMemoryStore(identities *identity.MemoryStore, auditLog *audit.MemoryLog, notes *notifications.MemoryStore) *MemoryStore {
	return &MemoryStore{identities: identities, audit: auditLog, notes: notes}
}

func (m *MemoryStore) Create(_ context.Context, req LeaveRequest, effects Effects) (LeaveRequest, notifications.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.ID = int64(len(m.requests) + 1)
	req.Status = StatusPending
	req.CreatedAt = time.Now().UTC()
	m.requests = append(m.requests, req)
	return req, m.writeEffects(req, effects), nil
}

func (m *MemoryStore) Decide(_ context.Context, id int64, status Status, actor string, effects Effects) (LeaveRequest, notifications.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(id - 1)
	if id < 1 || idx >= len(m.requests) {
		return LeaveRequest{}, notifications.Notification{}, ErrNotFound
	}
	req := m.requests[idx]
	if req.Status != StatusPending {
		return LeaveRequest{}, notifications.Notification{}, ErrWorkflowConflict
	}
	if status == StatusApproved && m.identities != nil {
		err := m.identities.AdjustBalance(req.EmployeeID, -float64(req.Days))
		if errors.Is(err, identity.ErrNegativeBalance) {
			return LeaveRequest{}, notifications.Notification{}, ErrInsufficientBalance
		}
		if err != nil {
			return LeaveRequest{}, notifications.Notification{}, err
		}
	}
	now := time.Now().UTC()
	req.Status = status
	req.DecidedAt = &now
	req.DecidedBy = actor
	m.requests[idx] = req
	return req, m.writeEffects(req, effects), nil
}

func (m *MemoryStore) writeEffects(req LeaveRequest, effects Effects) notifications.Notification {
	if effects == nil {
		return notifications.Notification{}
	}
	entry, n := effects(req)
	if m.audit != nil {
		m.audit.Append(entry)
	}
	if m.notes != nil {
		n = m.notes.Append(n)
	}
	return n
}

func (m *MemoryStore) Get(_ context.Context, id int64) (LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || int(id) > len(m.requests) {
		return LeaveRequest{}, ErrNotFound
	}
	return m.requests[id-1], nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]PendingItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PendingItem
	for i := len(m.requests) - 1; i >= 0; i-- {
		req := m.requests[i]
		if req.Status != StatusPending {
			continue
		}
		item := PendingItem{LeaveRequest: req}
		if m.identities != nil {
			if ident, err := m.identities.Get(ctx, req.EmployeeID); err == nil {
				item.Name = ident.Name
				item.Department = ident.Department
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *MemoryStore) ListByEmployee(_ context.Context, employeeID string) ([]LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []LeaveRequest
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].EmployeeID == employeeID {
			out = append(out, m.requests[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) Totals(_ context.Context, employeeID string, monthStart, monthEnd time.Time) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var t Totals
	for _, req := range m.requests {
		if req.EmployeeID != employeeID {
			continue
		}
		inMonth := !req.StartDate.Before(monthStart) && req.StartDate.Before(monthEnd)
		switch req.Status {
		case StatusPending:
			t.PendingDays += req.Days
			if inMonth {
				t.MonthPendingDays += req.Days
			}
		case StatusApproved:
			t.ApprovedDays += req.Days
			if inMonth {
				t.MonthApprovedDays += req.Days
			}
		}
	}
	return t, nil
}

// Rows exposes leave_requests to the in-memory query executor.
func (m *MemoryStore) Rows(_ context.Context) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, 0, len(m.requests))
	for _, req := range m.requests {
		row := map[string]any{
			"id":          req.ID,
			"employee_id": req.EmployeeID,
			"start_date":  req.StartDate,
			"end_date":    req.EndDate,
			"days":        int64(req.Days),
			"reason":      req.Reason,
			"status":      string(req.Status),
			"created_at":  req.CreatedAt,
			"decided_by":  req.DecidedBy,
		}
		if req.DecidedAt != nil {
			row["decided_at"] = *req.DecidedAt
		} else {
			row["decided_at"] = nil
		}
		out = append(out, row)
	}
	return out, nil
}
