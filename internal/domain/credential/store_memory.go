package credential

import (
	"context"
	"sync"
	"time"

	"hrassist/internal/domain/audit"
)

type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
	audit      *audit.MemoryLog
}

func NewMemoryStore(auditLog *audit.MemoryLog) *MemoryStore {
	return &MemoryStore{challenges: map[string]Challenge{}, audit: auditLog}
}

func (m *MemoryStore) Replace(_ context.Context, ch Challenge, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[ch.IdentityKey] = ch
	if m.audit != nil {
		m.audit.Append(entry)
	}
	return nil
}

func (m *MemoryStore) Consume(_ context.Context, identityKey string, check CheckFunc, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, found := m.challenges[identityKey]
	if err := check(ch, found); err != nil {
		return err
	}
	ch.Consumed = true
	m.challenges[identityKey] = ch
	if m.audit != nil {
		m.audit.Append(entry)
	}
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, ch := range m.challenges {
		if ch.Consumed || ch.ExpiresAt.Before(before) {
			delete(m.challenges, key)
			n++
		}
	}
	return n, nil
}
