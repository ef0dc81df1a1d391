package audit

import (
	"context"
	"sync"
	"time"
)

type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append assigns the next id and returns the stored entry.
func (m *MemoryLog) Append(e Entry) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, e)
	return e
}

func (m *MemoryLog) Record(_ context.Context, e Entry) error {
	m.Append(e)
	return nil
}

func (m *MemoryLog) List(_ context.Context, filter Filter, limit, offset int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	skipped := 0
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !filter.matches(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryLog) Count(_ context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if filter.matches(e) {
			n++
		}
	}
	return n, nil
}
