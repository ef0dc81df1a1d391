package retrieval

import (
	"context"
	"sync"
	"time"

	"hrassist/internal/domain/audit"
)

type MemoryStore struct {
	mu        sync.RWMutex
	documents []Document
	chunks    []Chunk
	nextDoc   int64
	nextChunk int64
	audit     *audit.MemoryLog
}

func NewMemoryStore(auditLog *audit.MemoryLog) *MemoryStore {
	return &MemoryStore{audit: auditLog}
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(doc, chunks, entry)
}

func (m *MemoryStore) ReplaceDocument(_ context.Context, doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := map[int64]bool{}
	kept := m.documents[:0]
	for _, d := range m.documents {
		if d.Name == doc.Name {
			dropped[d.ID] = true
			continue
		}
		kept = append(kept, d)
	}
	m.documents = kept
	keptChunks := m.chunks[:0]
	for _, c := range m.chunks {
		if !dropped[c.DocumentID] {
			keptChunks = append(keptChunks, c)
		}
	}
	m.chunks = keptChunks
	return m.save(doc, chunks, entry)
}

func (m *MemoryStore) save(doc Document, chunks []Chunk, entry audit.Entry) (Document, []Chunk, error) {
	m.nextDoc++
	doc.ID = m.nextDoc
	doc.CreatedAt = time.Now().UTC()
	m.documents = append(m.documents, doc)
	m.appendChunks(doc.ID, chunks)
	if m.audit != nil {
		entry.Target = documentTarget(doc.ID)
		m.audit.Append(entry)
	}
	return doc, chunks, nil
}

func (m *MemoryStore) appendChunks(documentID int64, chunks []Chunk) {
	for i := range chunks {
		if documentID != 0 {
			chunks[i].DocumentID = documentID
		}
		m.nextChunk++
		chunks[i].ID = m.nextChunk
		m.chunks = append(m.chunks, chunks[i])
	}
}

func (m *MemoryStore) ReplaceChunks(_ context.Context, chunks []Chunk, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	m.appendChunks(0, chunks)
	if m.audit != nil {
		m.audit.Append(entry)
	}
	return nil
}

func (m *MemoryStore) Documents(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Document(nil), m.documents...), nil
}

func (m *MemoryStore) Chunks(_ context.Context) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Chunk(nil), m.chunks...), nil
}

func (m *MemoryStore) Checksums(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.documents))
	for _, d := range m.documents {
		out[d.Name] = d.Checksum
	}
	return out, nil
}
