package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 400
)

// DefaultSeparators are tried in order: paragraph, line, sentence, comma, space, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " ", ""}

// Splitter cuts text into chunks of at most Size bytes, each sharing up to Overlap bytes
// with the previous one. It prefers the earliest separator that occurs in the text.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s Splitter) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text)
	} else {
		pieces = strings.SplitAfter(text, sep)
	}

	var out, fitting []string
	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if len(piece) <= s.Size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, s.merge(splitRunes(piece))...)
		} else {
			out = append(out, s.split(piece, rest)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

// merge packs pieces into windows of at most Size bytes, carrying the trailing Overlap bytes forward.
func (s Splitter) merge(pieces []string) []string {
	var chunks, window []string
	total := 0
	flush := func() {
		if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
			chunks = append(chunks, c)
		}
	}
	for _, p := range pieces {
		if total+len(p) > s.Size && len(window) > 0 {
			flush()
			for len(window) > 0 && (total > s.Overlap || total+len(p) > s.Size) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += len(p)
	}
	if len(window) > 0 {
		flush()
	}
	return chunks
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for len(text) > 0 {
		_, size := utf8.DecodeRuneInString(text)
		out = append(out, text[:size])
		text = text[size:]
	}
	return out
}
