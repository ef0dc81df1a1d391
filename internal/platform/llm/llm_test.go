package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: "```\nPOLICY\n```", want: "POLICY"},
		{in: "  DATA  ", want: "DATA"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.want, func(t *testing.T) {
			if got := CleanJSON(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestTokenizeDropsStopWords(t *testing.T) {
	got := strings.Join(Tokenize("What is the Maternity-leave policy?"), ",")
	if got != "maternity,leave" {
		t.Fatalf("expected maternity,leave, got %q", got)
	}
}

func TestHashEmbedderNormalizedAndStable(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"sick leave ten days", "sick leave ten days", "the a of"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var norm float64
	for i, v := range vecs[0] {
		norm += float64(v) * float64(v)
		if vecs[1][i] != v {
			t.Fatalf("expected identical vectors for identical text")
		}
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
	for _, v := range vecs[2] {
		if v != 0 {
			t.Fatalf("expected zero vector for stop words only")
		}
	}
}

func TestClientCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("unexpected request %s %q", r.URL.Path, r.Header.Get("Authorization"))
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": " DATA \n"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "k", Model: "m", Timeout: time.Second, MaxRetries: 3})
	got, err := c.Complete(context.Background(), Prompt{System: "route", User: "hello"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "DATA" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected DATA after one retry, got %q after %d calls", got, calls)
	}
}

func TestClientRetryBudget(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		want    int32
	}{
		{name: "no retries", retries: 0, want: 1},
		{name: "one retry", retries: 1, want: 2},
		{name: "two retries", retries: 2, want: 3},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				atomic.AddInt32(&calls, 1)
				http.Error(w, "busy", http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "m", Timeout: time.Second, MaxRetries: tc.retries})
			if _, err := c.Complete(context.Background(), Prompt{User: "hello"}); !errors.Is(err, ErrProviderUnavailable) {
				t.Fatalf("expected ErrProviderUnavailable, got %v", err)
			}
			if got := atomic.LoadInt32(&calls); got != tc.want {
				t.Fatalf("expected %d calls, got %d", tc.want, got)
			}
		})
	}
}

func TestClientClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	var failed string
	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "m", Timeout: time.Second, MaxRetries: 3})
	c.OnFailure = func(op string) { failed = op }
	_, err := c.Complete(context.Background(), Prompt{User: "hello"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 || failed != "complete" {
		t.Fatalf("expected a single call and a failure callback, got %d calls, %q", calls, failed)
	}
}

func TestClientEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, EmbeddingModel: "e", Timeout: time.Second})
	vecs, err := c.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("expected vectors in input order, got %v", vecs)
	}

	if _, err := c.Embed(context.Background(), []string{"only one"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected count mismatch to be a provider error, got %v", err)
	}
}
