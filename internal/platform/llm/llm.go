package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrProviderUnavailable is returned once a model call has exhausted its retries.
var ErrProviderUnavailable = errors.New("model provider unavailable")

type Prompt struct {
	System string
	User   string
	// MaxTokens caps the completion length; zero leaves the provider default.
	MaxTokens int
}

type Generator interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CleanJSON strips markdown fences that models wrap around JSON answers.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
