package identity

import (
	"context"
	"sort"
	"sync"

	"hrassist/internal/domain/audit"
)

// MemoryStore backs development runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]Identity
	audit *audit.MemoryLog
}

func NewMemoryStore(auditLog *audit.MemoryLog) *MemoryStore {
	return &MemoryStore{rows: map[string]Identity{}, audit: auditLog}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.rows[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Identity, 0, len(m.rows))
	for _, ident := range m.rows {
		out = append(out, ident)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Import(_ context.Context, rows []Identity, entry audit.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range rows {
		m.rows[ident.ID] = ident
	}
	if m.audit != nil {
		m.audit.Append(entry)
	}
	return len(rows), nil
}

func (m *MemoryStore) Ensure(_ context.Context, ident Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[ident.ID]; !ok {
		m.rows[ident.ID] = ident
	}
	return nil
}

// AdjustBalance adds delta to the stored balance, refusing to take it below zero.
func (m *MemoryStore) AdjustBalance(id string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if ident.LeaveBalance+delta < 0 {
		return ErrNegativeBalance
	}
	ident.LeaveBalance += delta
	m.rows[id] = ident
	return nil
}

// Rows exposes the table to the in-memory query executor, keyed by column name.
func (m *MemoryStore) Rows(_ context.Context) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]any, 0, len(m.rows))
	for _, ident := range m.rows {
		row := map[string]any{
			"id":             ident.ID,
			"role":           string(ident.Role),
			"name":           ident.Name,
			"email":          ident.Email,
			"department":     ident.Department,
			"manager_id":     ident.ManagerID,
			"job_role":       ident.JobRole,
			"monthly_income": ident.MonthlyIncome,
			"leave_balance":  ident.LeaveBalance,
		}
		if ident.HireDate != nil {
			row["hire_date"] = *ident.HireDate
		} else {
			row["hire_date"] = nil
		}
		out = append(out, row)
	}
	return out, nil
}
