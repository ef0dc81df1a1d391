package notifications

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu     sync.RWMutex
	items  []Notification
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append is the in-memory counterpart of Insert.
func (m *MemoryStore) Append(n Notification) Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	m.items = append(m.items, n)
	return n
}

func (m *MemoryStore) List(_ context.Context, scope string, q FeedQuery) ([]Notification, error) {
	q = q.normalized()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Notification
	for i := len(m.items) - 1; i >= 0 && len(out) < q.Limit; i-- {
		n := m.items[i]
		if n.ID <= q.AfterID {
			break
		}
		if q.BeforeID > 0 && n.ID >= q.BeforeID {
			continue
		}
		if n.RecipientScope == scope {
			out = append(out, n)
		}
	}
	return out, nil
}
