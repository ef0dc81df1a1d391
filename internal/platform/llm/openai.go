package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"hrassist/internal/platform/tracing"
)

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	// MaxRetries counts attempts after the first; zero means a single attempt.
	MaxRetries int
}

// Client talks to any OpenAI-compatible chat completions and embeddings API.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	// OnFailure is called with the operation name when a call exhausts its retries.
	OnFailure func(operation string)
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{}}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider HTTP %d: %s", e.code, e.body)
}

func (c *Client) Complete(ctx context.Context, prompt Prompt) (string, error) {
	ctx, span := tracing.Tracer("hrassist/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.Model))

	messages := []map[string]string{}
	if prompt.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": prompt.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt.User})
	payload := map[string]any{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": 0,
	}
	if prompt.MaxTokens > 0 {
		payload["max_tokens"] = prompt.MaxTokens
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "complete", "/chat/completions", payload, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrProviderUnavailable)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := tracing.Tracer("hrassist/llm").Start(ctx, "llm.embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.EmbeddingModel), attribute.Int("llm.inputs", len(texts)))

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	payload := map[string]any{"model": c.cfg.EmbeddingModel, "input": texts}
	if err := c.post(ctx, "embed", "/embeddings", payload, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderUnavailable, len(texts), len(result.Data))
	}
	out := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrProviderUnavailable, item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

// post retries transport errors, 429 and 5xx with exponential backoff. Other statuses fail at once.
func (c *Client) post(ctx context.Context, operation, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	attempt := func() ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if resp.StatusCode != http.StatusOK {
			serr := &statusError{code: resp.StatusCode, body: truncate(strings.TrimSpace(string(respBody)), 200)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, serr
			}
			return nil, backoff.Permanent(serr)
		}
		return respBody, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	respBody, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			zap.L().Warn("provider call failed, retrying",
				zap.String("operation", operation),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		if c.OnFailure != nil {
			c.OnFailure(operation)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, operation, err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProviderUnavailable, operation, err)
	}
	return nil
}
