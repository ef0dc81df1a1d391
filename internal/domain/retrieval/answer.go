package retrieval

import (
	"regexp"
	"strings"

	"hrassist/internal/platform/llm"
)

const (
	maxBullets     = 6
	minBullets     = 3
	maxBulletWords = 22
	snippetChars   = 1200
	contextChars   = 6000
)

var (
	bracketRe     = regexp.MustCompile(`\[[^\]]*\]`)
	sourceRe      = regexp.MustCompile(`(?i)\(source[:\s]?[^)]*\)`)
	urlRe         = regexp.MustCompile(`https?://\S+`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
	spacesRe      = regexp.MustCompile(`[ \t]{2,}`)
	bulletPrefix  = regexp.MustCompile(`^(?:[-*\x{2022}\x{2023}\x{25E6}\x{2219}\x{2043}\x{2013}\x{2014}.\s]+|\d+[.)]\s+)+`)
	sentenceBreak = regexp.MustCompile(`([.!?])\s+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// cleanAnswer strips bracketed citations, source notes and URLs from model output.
func cleanAnswer(text string) string {
	text = bracketRe.ReplaceAllString(text, "")
	text = sourceRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// formatBullets rewrites text as up to six "• " bullets of at most 22 words.
func formatBullets(text string) string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		if b := strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")); b != "" {
			bullets = append(bullets, b)
		}
	}
	if len(bullets) < minBullets {
		if sentences := splitSentences(text); len(sentences) > len(bullets) {
			bullets = sentences
		}
	}
	if len(bullets) > maxBullets {
		bullets = bullets[:maxBullets]
	}

	out := make([]string, 0, len(bullets))
	for _, b := range bullets {
		words := strings.Fields(b)
		if len(words) > maxBulletWords {
			b = strings.Join(words[:maxBulletWords], " ") + "…"
		}
		out = append(out, "• "+b)
	}
	return strings.Join(out, "\n")
}

func splitSentences(text string) []string {
	flat := whitespaceRe.ReplaceAllString(text, " ")
	flat = sentenceBreak.ReplaceAllString(flat, "$1\n")
	var out []string
	for _, s := range strings.Split(flat, "\n") {
		if s = strings.TrimSpace(bulletPrefix.ReplaceAllString(strings.TrimSpace(s), "")); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// buildContext joins hit texts, each capped at snippetChars, until contextChars is reached.
func buildContext(hits []Hit) string {
	var b strings.Builder
	for _, h := range hits {
		snippet := truncateRunes(strings.TrimSpace(h.Chunk.Text), snippetChars)
		if snippet == "" {
			continue
		}
		if b.Len() > 0 {
			if b.Len()+2+len(snippet) > contextChars {
				break
			}
			b.WriteString("\n\n")
		} else if len(snippet) > contextChars {
			snippet = truncateRunes(snippet, contextChars)
		}
		b.WriteString(snippet)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// declined reports whether the model said the context does not answer the question.
func declined(answer string) bool {
	upper := strings.ToUpper(strings.TrimSpace(answer))
	return upper == "" || strings.Contains(upper, "NOT_FOUND") || strings.Contains(upper, "POLICY NOT FOUND")
}

func normalizeQuestion(q string) string {
	q = strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(q), " "))
	return strings.TrimRight(q, "?!. ")
}

// extractive answers from the hits alone: the sentences sharing a content word with the
// question, best hit first. It declines when none do.
func extractive(question string, hits []Hit) string {
	terms := map[string]bool{}
	for _, t := range llm.Tokenize(question) {
		terms[t] = true
	}
	var picked []string
	seen := map[string]bool{}
	for _, h := range hits {
		for _, sentence := range splitSentences(h.Chunk.Text) {
			if seen[sentence] {
				continue
			}
			for _, t := range llm.Tokenize(sentence) {
				if terms[t] {
					picked = append(picked, sentence)
					seen[sentence] = true
					break
				}
			}
			if len(picked) == maxBullets {
				return strings.Join(picked, "\n")
			}
		}
	}
	if len(picked) == 0 {
		return "NOT_FOUND"
	}
	return strings.Join(picked, "\n")
}
