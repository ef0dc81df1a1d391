package retrieval

import (
	"math"
	"sort"
	"sync"
)

const DefaultSegmentSize = 256

// Index is an in-memory vector index split into fixed-capacity segments, each with its own
// lock. Appends only touch the tail segment and searches read-lock one segment at a time.
type Index struct {
	segmentSize int

	mu       sync.RWMutex
	segments []*segment
}

type segment struct {
	mu     sync.RWMutex
	chunks []Chunk
}

func NewIndex(segmentSize int) *Index {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Index{segmentSize: segmentSize}
}

func (ix *Index) Append(chunks ...Chunk) {
	for len(chunks) > 0 {
		seg := ix.tail()
		if seg == nil {
			ix.grow(nil)
			continue
		}
		seg.mu.Lock()
		room := ix.segmentSize - len(seg.chunks)
		if room <= 0 {
			seg.mu.Unlock()
			ix.grow(seg)
			continue
		}
		n := min(room, len(chunks))
		seg.chunks = append(seg.chunks, chunks[:n]...)
		seg.mu.Unlock()
		chunks = chunks[n:]
	}
}

func (ix *Index) tail() *segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.segments) == 0 {
		return nil
	}
	return ix.segments[len(ix.segments)-1]
}

// grow adds a segment unless another appender already replaced full as the tail.
func (ix *Index) grow(full *segment) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := len(ix.segments)
	if n == 0 || ix.segments[n-1] == full {
		ix.segments = append(ix.segments, &segment{chunks: make([]Chunk, 0, ix.segmentSize)})
	}
}

func (ix *Index) snapshot() []*segment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]*segment(nil), ix.segments...)
}

// Search returns the k chunks most similar to vec, best first.
func (ix *Index) Search(vec []float32, k int) []Hit {
	if k <= 0 {
		return nil
	}
	var hits []Hit
	for _, seg := range ix.snapshot() {
		seg.mu.RLock()
		for _, c := range seg.chunks {
			hits = append(hits, Hit{Chunk: c, Score: cosine(vec, c.Embedding)})
		}
		seg.mu.RUnlock()
		if len(hits) > 4*k {
			hits = topK(hits, k)
		}
	}
	return topK(hits, k)
}

func topK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (ix *Index) Len() int {
	n := 0
	for _, seg := range ix.snapshot() {
		seg.mu.RLock()
		n += len(seg.chunks)
		seg.mu.RUnlock()
	}
	return n
}

func (ix *Index) Segments() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.segments)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
