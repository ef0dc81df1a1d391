package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"hrassist/internal/domain/audit"
	"hrassist/internal/platform/llm"
)

// groundedGenerator answers from the snippets it is given, the way a well-behaved model would.
type groundedGenerator struct {
	calls atomic.Int32
	fail  bool
}

func (g *groundedGenerator) Complete(_ context.Context, p llm.Prompt) (string, error) {
	g.calls.Add(1)
	if g.fail {
		return "", errors.New("provider down")
	}
	switch {
	case strings.Contains(p.User, "26 weeks"):
		return "- Maternity leave is 26 weeks paid [policy.pdf p.3].\n- Apply through HR https://intranet/hr\n- Notify your manager early.", nil
	default:
		return "NOT_FOUND", nil
	}
}

func newEngine(t *testing.T, gen llm.Generator) (*Engine, *MemoryStore, *audit.MemoryLog) {
	t.Helper()
	log := audit.NewMemoryLog()
	store := NewMemoryStore(log)
	engine, err := NewEngine(store, llm.NewHashEmbedder(1024), gen, Options{
		TopK:         6,
		MinScore:     0.35,
		ChunkSize:    200,
		ChunkOverlap: 50,
		SegmentSize:  4,
		CacheSize:    16,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, store, log
}

func TestEngineGroundedAnswerAndNotFound(t *testing.T) {
	gen := &groundedGenerator{}
	engine, _, log := newEngine(t, gen)
	ctx := context.Background()

	n, err := engine.Ingest(ctx, "leave-policy", "maternity leave is 26 weeks paid", "hr")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 chunk, got %d", n)
	}
	if count, _ := log.Count(ctx, audit.Filter{Action: audit.ActionPolicyIngest, Target: "policy_document:1"}); count != 1 {
		t.Fatalf("expected one ingest audit entry, got %d", count)
	}

	ans, err := engine.Ask(ctx, "What is the maternity leave policy?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !ans.Found || !strings.Contains(ans.Answer, "26 weeks") {
		t.Fatalf("expected grounded answer with 26 weeks, got %+v", ans)
	}
	if strings.Contains(ans.Answer, "[") || strings.Contains(ans.Answer, "http") {
		t.Fatalf("expected citations stripped, got %q", ans.Answer)
	}
	for _, line := range strings.Split(ans.Answer, "\n") {
		if !strings.HasPrefix(line, "• ") {
			t.Fatalf("expected bullet lines, got %q", line)
		}
	}
	if len(ans.Citations) != 1 || ans.Citations[0].Document != "leave-policy" {
		t.Fatalf("expected one citation, got %+v", ans.Citations)
	}

	missing, err := engine.Ask(ctx, "What is the dress code?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if missing.Found || missing.Answer != NotFoundAnswer {
		t.Fatalf("expected not found, got %+v", missing)
	}
}

func TestEngineCachesPerIndexVersion(t *testing.T) {
	gen := &groundedGenerator{}
	engine, _, _ := newEngine(t, gen)
	ctx := context.Background()
	if _, err := engine.Ingest(ctx, "leave-policy", "maternity leave is 26 weeks paid", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	first, err := engine.Ask(ctx, "what is the maternity leave policy?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	second, err := engine.Ask(ctx, "  What is the MATERNITY leave policy  ")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if first.Answer != second.Answer || gen.calls.Load() != 1 {
		t.Fatalf("expected cached identical answer after one call, got %d calls", gen.calls.Load())
	}

	if _, err := engine.Ingest(ctx, "travel", "travel is reimbursed within 30 days", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := engine.Ask(ctx, "what is the maternity leave policy?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if gen.calls.Load() != 2 {
		t.Fatalf("expected a new index version to bypass the cache, got %d calls", gen.calls.Load())
	}
}

func TestEngineEmptyIndexAndEmptyDocument(t *testing.T) {
	engine, _, _ := newEngine(t, &groundedGenerator{})
	ctx := context.Background()

	ans, err := engine.Ask(ctx, "what is the leave policy?")
	if err != nil || ans.Found {
		t.Fatalf("expected not found on empty index, got %+v, %v", ans, err)
	}
	if _, err := engine.Ingest(ctx, "blank", "   ", "hr"); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if _, err := engine.Ask(ctx, " ?? "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestEngineProviderDown(t *testing.T) {
	engine, _, _ := newEngine(t, &groundedGenerator{fail: true})
	ctx := context.Background()
	if _, err := engine.Ingest(ctx, "leave-policy", "maternity leave is 26 weeks paid", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, err := engine.Ask(ctx, "what is the maternity leave policy?")
	if !errors.Is(err, llm.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestEngineReindexAndLoad(t *testing.T) {
	engine, store, log := newEngine(t, &groundedGenerator{})
	ctx := context.Background()
	long := strings.Repeat("Sick leave requires a medical certificate after two days. ", 12)
	if _, err := engine.Ingest(ctx, "sick", long, "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := engine.Ingest(ctx, "maternity", "maternity leave is 26 weeks paid", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	before := engine.Status()

	n, err := engine.ReindexAll(ctx, "hr")
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	after := engine.Status()
	if n != before.Chunks || after.Chunks != before.Chunks || after.Documents != 2 {
		t.Fatalf("expected %d chunks over 2 documents, got %d (%+v)", before.Chunks, n, after)
	}
	if after.Version <= before.Version {
		t.Fatalf("expected version to advance, %d -> %d", before.Version, after.Version)
	}
	if count, _ := log.Count(ctx, audit.Filter{Action: audit.ActionPolicyReindex}); count != 1 {
		t.Fatalf("expected one reindex audit entry, got %d", count)
	}

	reloaded, err := NewEngine(store, llm.NewHashEmbedder(1024), &groundedGenerator{}, Options{MinScore: 0.35, ChunkSize: 200, ChunkOverlap: 50})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if st := reloaded.Status(); st.Chunks != after.Chunks || st.Documents != 2 {
		t.Fatalf("expected reloaded index to match, got %+v", st)
	}
	ans, err := reloaded.Ask(ctx, "what is the maternity leave policy?")
	if err != nil || !ans.Found {
		t.Fatalf("expected grounded answer after reload, got %+v, %v", ans, err)
	}
}

func TestFormatBullets(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := formatBullets("1. First point.\n* Second point\n• Third point\n" + long + "\nfifth\nsixth\nseventh")
	lines := strings.Split(got, "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 bullets, got %d: %q", len(lines), got)
	}
	if lines[0] != "• First point." || lines[1] != "• Second point" {
		t.Fatalf("unexpected bullets %q", lines[:2])
	}
	if words := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(lines[3], "• "), "…")); len(words) != 22 {
		t.Fatalf("expected 22 words, got %d", len(words))
	}

	paragraph := formatBullets("Leave is 26 weeks. It is paid. Apply through HR.")
	if strings.Count(paragraph, "• ") != 3 {
		t.Fatalf("expected sentences split into bullets, got %q", paragraph)
	}
}

func TestEngineExtractiveWithoutGenerator(t *testing.T) {
	engine, _, _ := newEngine(t, nil)
	ctx := context.Background()
	if _, err := engine.Ingest(ctx, "leave-policy", "maternity leave is 26 weeks paid", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	ans, err := engine.Ask(ctx, "What is the maternity leave policy?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !ans.Found || !strings.Contains(ans.Answer, "26 weeks") {
		t.Fatalf("expected extractive answer with 26 weeks, got %+v", ans)
	}
}

func TestExtractive(t *testing.T) {
	hits := []Hit{
		{Chunk: Chunk{Text: "Sick leave needs a note after two days. Parking is free."}, Score: 0.9},
		{Chunk: Chunk{Text: "Sick leave needs a note after two days."}, Score: 0.8},
	}
	if got := extractive("how does sick leave work", hits); got != "Sick leave needs a note after two days." {
		t.Fatalf("expected the single matching sentence, got %q", got)
	}
	if got := extractive("dress code", hits); got != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %q", got)
	}
}

// eagerGenerator answers every question, grounded or not.
type eagerGenerator struct{ calls atomic.Int32 }

func (g *eagerGenerator) Complete(context.Context, llm.Prompt) (string, error) {
	g.calls.Add(1)
	return "- Business casual is required in the office.", nil
}

func TestEngineUnrelatedChunkIsNotGrounding(t *testing.T) {
	gen := &eagerGenerator{}
	engine, err := NewEngine(NewMemoryStore(nil), llm.NewHashEmbedder(0), gen, Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.opts.MinScore != DefaultMinScore {
		t.Fatalf("expected default min score %v, got %v", DefaultMinScore, engine.opts.MinScore)
	}
	ctx := context.Background()
	if _, err := engine.Ingest(ctx, "leave-policy", "maternity leave is 26 weeks paid", "hr"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	ans, err := engine.Ask(ctx, "what is the dress code?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Found || ans.Answer != NotFoundAnswer {
		t.Fatalf("expected not found, got %+v", ans)
	}
	if calls := gen.calls.Load(); calls != 0 {
		t.Fatalf("expected the generator not to be called without a source, got %d calls", calls)
	}
}

func TestEngineSyncReplacesByName(t *testing.T) {
	engine, store, _ := newEngine(t, nil)
	ctx := context.Background()

	if _, changed, err := engine.Sync(ctx, "leave", "maternity leave is 26 weeks paid", "inbox"); err != nil || !changed {
		t.Fatalf("expected first sync to ingest, got changed=%v err=%v", changed, err)
	}
	if _, changed, err := engine.Sync(ctx, "leave", "maternity leave is 26 weeks paid", "inbox"); err != nil || changed {
		t.Fatalf("expected unchanged sync to be skipped, got changed=%v err=%v", changed, err)
	}
	if _, changed, err := engine.Sync(ctx, "leave", "maternity leave is 30 weeks paid", "inbox"); err != nil || !changed {
		t.Fatalf("expected changed text to sync, got changed=%v err=%v", changed, err)
	}

	docs, _ := store.Documents(ctx)
	if len(docs) != 1 || docs[0].Checksum != Checksum("maternity leave is 30 weeks paid") {
		t.Fatalf("expected a single current document, got %+v", docs)
	}
	chunks, _ := store.Chunks(ctx)
	for _, c := range chunks {
		if strings.Contains(c.Text, "26 weeks") {
			t.Fatalf("expected stale chunk to be removed, got %+v", c)
		}
	}
	if st := engine.Status(); st.Documents != 1 || st.Chunks != len(chunks) {
		t.Fatalf("expected status to follow the store, got %+v", st)
	}

	ans, err := engine.Ask(ctx, "how long is maternity leave?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !ans.Found || !strings.Contains(ans.Answer, "30 weeks") || strings.Contains(ans.Answer, "26 weeks") {
		t.Fatalf("expected answer from the replaced text only, got %+v", ans)
	}

	sums, err := engine.Checksums(ctx)
	if err != nil || sums["leave"] != Checksum("maternity leave is 30 weeks paid") {
		t.Fatalf("unexpected checksums %v %v", sums, err)
	}
}
