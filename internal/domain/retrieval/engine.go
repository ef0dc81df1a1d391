package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"hrassist/internal/domain/audit"
	"hrassist/internal/platform/llm"
	"hrassist/internal/platform/metrics"
)

type Options struct {
	TopK         int
	MinScore     float64
	ChunkSize    int
	ChunkOverlap int
	SegmentSize  int
	CacheSize    int
	Metrics      *metrics.Collector
}

// DefaultMinScore is the relevance floor used when Options.MinScore is unset.
const DefaultMinScore = 0.2

type cacheKey struct {
	version  uint64
	question string
}

// Engine ingests policy text and answers questions grounded in it.
type Engine struct {
	store    StoreAPI
	embedder llm.Embedder
	gen      llm.Generator
	splitter Splitter
	opts     Options

	// ingests hold the read side; ReindexAll holds the write side while it swaps the index.
	swap    sync.RWMutex
	index   atomic.Pointer[Index]
	version atomic.Uint64
	docs    atomic.Int64
	cache   *lru.Cache[cacheKey, GroundedAnswer]
}

func NewEngine(store StoreAPI, embedder llm.Embedder, gen llm.Generator, opts Options) (*Engine, error) {
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 512
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	cache, err := lru.New[cacheKey, GroundedAnswer](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create answer cache: %w", err)
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		gen:      gen,
		splitter: NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
		cache:    cache,
	}
	e.index.Store(NewIndex(opts.SegmentSize))
	return e, nil
}

// Load rebuilds the in-memory index from stored chunks.
func (e *Engine) Load(ctx context.Context) error {
	e.swap.Lock()
	defer e.swap.Unlock()
	return e.reload(ctx)
}

// reload rebuilds the index from the store; the caller holds the swap write lock.
func (e *Engine) reload(ctx context.Context) error {
	chunks, err := e.store.Chunks(ctx)
	if err != nil {
		return fmt.Errorf("load policy chunks: %w", err)
	}
	docs, err := e.store.Documents(ctx)
	if err != nil {
		return fmt.Errorf("load policy documents: %w", err)
	}
	ix := NewIndex(e.opts.SegmentSize)
	ix.Append(chunks...)
	e.index.Store(ix)
	e.docs.Store(int64(len(docs)))
	e.version.Add(1)
	zap.L().Info("policy index loaded", zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	return nil
}

// Ingest chunks, embeds and stores text as a new document, then appends it to the live index.
func (e *Engine) Ingest(ctx context.Context, name, text, actor string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "policy"
	}
	pieces := e.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, ErrEmptyDocument
	}
	chunks, err := e.embedChunks(ctx, name, pieces)
	if err != nil {
		return 0, err
	}

	e.swap.RLock()
	defer e.swap.RUnlock()

	entry := audit.NewEntry(ctx, actor, audit.ActionPolicyIngest, "", map[string]any{
		"name":   name,
		"chunks": len(chunks),
		"chars":  len(text),
	})
	doc, chunks, err := e.store.SaveDocument(ctx, Document{Name: name, Text: text, Checksum: Checksum(text)}, chunks, entry)
	if err != nil {
		return 0, fmt.Errorf("save policy document: %w", err)
	}
	e.index.Load().Append(chunks...)
	e.docs.Add(1)
	e.version.Add(1)

	zap.L().Info("policy document ingested",
		zap.Int64("documentId", doc.ID),
		zap.String("name", name),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Checksums maps stored document names to the checksum of their newest version.
func (e *Engine) Checksums(ctx context.Context) (map[string]string, error) {
	return e.store.Checksums(ctx)
}

// Sync makes name hold exactly text. An unchanged document is left alone and reports
// changed=false; otherwise every stored version of name is replaced by one new document.
func (e *Engine) Sync(ctx context.Context, name, text, actor string) (chunks int, changed bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false, ErrEmptyDocument
	}
	sum := Checksum(text)
	stored, err := e.store.Checksums(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("load policy checksums: %w", err)
	}
	prev, exists := stored[name]
	if exists && prev == sum {
		return 0, false, nil
	}

	pieces := e.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, false, ErrEmptyDocument
	}
	embedded, err := e.embedChunks(ctx, name, pieces)
	if err != nil {
		return 0, false, err
	}

	e.swap.Lock()
	defer e.swap.Unlock()

	entry := audit.NewEntry(ctx, actor, audit.ActionPolicyIngest, "", map[string]any{
		"name":     name,
		"chunks":   len(embedded),
		"chars":    len(text),
		"replaced": exists,
	})
	doc, embedded, err := e.store.ReplaceDocument(ctx, Document{Name: name, Text: text, Checksum: sum}, embedded, entry)
	if err != nil {
		return 0, false, fmt.Errorf("replace policy document: %w", err)
	}
	if exists {
		if err := e.reload(ctx); err != nil {
			return 0, false, err
		}
	} else {
		e.index.Load().Append(embedded...)
		e.docs.Add(1)
		e.version.Add(1)
	}

	zap.L().Info("policy document synced",
		zap.Int64("documentId", doc.ID),
		zap.String("name", name),
		zap.Bool("replaced", exists),
		zap.Int("chunks", len(embedded)))
	return len(embedded), true, nil
}

// ReindexAll re-chunks and re-embeds every stored document and swaps in a fresh index.
func (e *Engine) ReindexAll(ctx context.Context, actor string) (int, error) {
	e.swap.Lock()
	defer e.swap.Unlock()

	docs, err := e.store.Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list policy documents: %w", err)
	}
	var all []Chunk
	for _, doc := range docs {
		pieces := e.splitter.Split(doc.Text)
		if len(pieces) == 0 {
			continue
		}
		chunks, err := e.embedChunks(ctx, doc.Name, pieces)
		if err != nil {
			return 0, err
		}
		for i := range chunks {
			chunks[i].DocumentID = doc.ID
		}
		all = append(all, chunks...)
	}

	entry := audit.NewEntry(ctx, actor, audit.ActionPolicyReindex, "policy_index", map[string]any{
		"documents": len(docs),
		"chunks":    len(all),
	})
	if err := e.store.ReplaceChunks(ctx, all, entry); err != nil {
		return 0, fmt.Errorf("replace policy chunks: %w", err)
	}
	ix := NewIndex(e.opts.SegmentSize)
	ix.Append(all...)
	e.index.Store(ix)
	e.docs.Store(int64(len(docs)))
	e.version.Add(1)

	zap.L().Info("policy index rebuilt", zap.Int("documents", len(docs)), zap.Int("chunks", len(all)))
	return len(all), nil
}

func (e *Engine) embedChunks(ctx context.Context, source string, pieces []string) ([]Chunk, error) {
	vectors, err := e.embedder.Embed(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("%w: embed chunks: %v", llm.ErrProviderUnavailable, err)
	}
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
	}
	chunks := make([]Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = Chunk{Source: source, Text: text, Ordinal: i, Embedding: vectors[i]}
	}
	return chunks, nil
}

const answerSystem = `You are an HR policy assistant. Answer ONLY from the policy snippets provided.
Write 3 to 6 bullet points, each starting with "• " and at most 22 words.
No sources, no URLs, no headings, no citations.
If the snippets do not answer the question, reply with exactly NOT_FOUND.`

// Ask answers question from the indexed policies. A question the documents do not cover
// yields Found=false, not an error.
func (e *Engine) Ask(ctx context.Context, question string) (GroundedAnswer, error) {
	normalized := normalizeQuestion(question)
	if normalized == "" {
		return GroundedAnswer{}, ErrEmptyQuestion
	}
	key := cacheKey{version: e.version.Load(), question: normalized}
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	ix := e.index.Load()
	if ix.Len() == 0 {
		return e.remember(key, notFound()), nil
	}

	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil || len(vectors) != 1 {
		e.opts.Metrics.ProviderFailure("embed")
		return GroundedAnswer{}, fmt.Errorf("%w: embed question: %v", llm.ErrProviderUnavailable, err)
	}

	var hits []Hit
	for _, h := range ix.Search(vectors[0], e.opts.TopK) {
		// A zero score shares no feature with the question.
		if h.Score > 0 && h.Score >= e.opts.MinScore {
			hits = append(hits, h)
		}
	}
	if len(hits) == 0 {
		zap.L().Debug("no policy chunk above threshold", zap.String("question", normalized))
		return e.remember(key, notFound()), nil
	}

	raw, err := e.compose(ctx, question, hits)
	if err != nil {
		return GroundedAnswer{}, err
	}
	if declined(raw) {
		return e.remember(key, notFound()), nil
	}

	answer := GroundedAnswer{Found: true, Answer: formatBullets(cleanAnswer(raw)), Citations: citations(hits)}
	if strings.TrimSpace(answer.Answer) == "" {
		return e.remember(key, notFound()), nil
	}
	zap.L().Info("policy answer grounded",
		zap.String("question", normalized),
		zap.Any("citations", answer.Citations))
	return e.remember(key, answer), nil
}

// compose asks the generator for an answer. Without one it extracts the matching sentences.
func (e *Engine) compose(ctx context.Context, question string, hits []Hit) (string, error) {
	if e.gen == nil {
		return extractive(question, hits), nil
	}
	raw, err := e.gen.Complete(ctx, llm.Prompt{
		System:    answerSystem,
		User:      fmt.Sprintf("Question: %s\n\nPolicy snippets:\n%s", question, buildContext(hits)),
		MaxTokens: 400,
	})
	if err != nil {
		return "", fmt.Errorf("%w: answer: %v", llm.ErrProviderUnavailable, err)
	}
	return raw, nil
}

func (e *Engine) remember(key cacheKey, answer GroundedAnswer) GroundedAnswer {
	e.opts.Metrics.PolicyAnswer(answer.Found)
	e.cache.Add(key, answer)
	return answer
}

func citations(hits []Hit) []Citation {
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, Citation{Document: h.Chunk.Source, Ordinal: h.Chunk.Ordinal, Score: h.Score})
	}
	return out
}

func (e *Engine) Status() Status {
	ix := e.index.Load()
	return Status{
		Documents: int(e.docs.Load()),
		Chunks:    ix.Len(),
		Segments:  ix.Segments(),
		Version:   e.version.Load(),
	}
}

func documentTarget(id int64) string {
	return fmt.Sprintf("policy_document:%d", id)
}
