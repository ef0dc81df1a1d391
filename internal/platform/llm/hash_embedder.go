package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "can": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "what": {}, "when": {}, "which": {}, "who": {}, "will": {}, "with": {},
	"you": {}, "your": {}, "policy": {}, "policies": {},
}

// HashEmbedder is an offline embedder: feature-hashed bag of words, L2 normalized.
// Good enough for development and tests; not a semantic model.
type HashEmbedder struct {
	Dim int
}

func NewHashEmbedder(dim int) HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return HashEmbedder{Dim: dim}
}

func (e HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.Dim)
	for _, token := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(e.Dim))
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Tokenize lowercases text, splits on non-alphanumerics and drops stop words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
