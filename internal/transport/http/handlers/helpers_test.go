package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hrassist/internal/app/server"
	"hrassist/internal/platform/config"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error any             `json:"error"`
}

func testConfig(driver, dbURL string) config.Config {
	return config.Config{
		Addr:               ":0",
		Environment:        "test",
		StoreDriver:        driver,
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		SessionTTL:         time.Hour,
		OTPTTL:             10 * time.Minute,
		AdminIdentityKey:   "hr",
		AdminEmail:         "hr@test.local",
		AdminName:          "HR Desk",
		EmailFrom:          "no-reply@test.local",
		HRMailbox:          "hr@test.local",
		LLMProvider:        "local",
		EmbeddingDim:       1024,
		ChunkSize:          1500,
		ChunkOverlap:       400,
		RetrievalTopK:      6,
		RetrievalMinScore:  0.2,
		AnswerCacheSize:    64,
		EventsBackend:      "none",
		RunMigrations:      true,
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		OTPCleanupInterval: time.Hour,
		MetricsEnabled:     true,
		LogLevel:           "error",
	}
}

func startServer(t *testing.T, cfg config.Config) (*httptest.Server, *http.Client) {
	t.Helper()
	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	ts := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		ts.Close()
		app.Close()
	})
	return ts, ts.Client()
}

// login runs the two OTP steps with the code the simulated mailer hands back.
func login(t *testing.T, client *http.Client, baseURL, role, employeeID string) string {
	t.Helper()
	issued := flatJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/request-otp", "", map[string]any{
		"role":        role,
		"employee_id": employeeID,
	}, http.StatusOK)
	code, _ := issued["dev_code"].(string)
	if code == "" {
		t.Fatalf("expected dev_code in %+v", issued)
	}
	verified := flatJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/verify-otp", "", map[string]any{
		"role":        role,
		"employee_id": employeeID,
		"code":        code,
	}, http.StatusOK)
	token, _ := verified["token"].(string)
	if token == "" {
		t.Fatalf("expected token in %+v", verified)
	}
	return token
}

func do(t *testing.T, client *http.Client, method, url, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, raw
}

// flatJSON is for the chat and credential endpoints, which do not use the envelope.
func flatJSON(t *testing.T, client *http.Client, method, url, token string, body any, want int) map[string]any {
	t.Helper()
	status, raw := do(t, client, method, url, token, body)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, string(raw))
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) envelope {
	t.Helper()
	status, raw := do(t, client, http.MethodPost, url, token, body)
	if status >= 400 {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}
	return decodeEnvelope(t, raw)
}

func postJSONStatus(t *testing.T, client *http.Client, url, token string, body any, want int) envelope {
	t.Helper()
	status, raw := do(t, client, http.MethodPost, url, token, body)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, string(raw))
	}
	return decodeEnvelope(t, raw)
}

func getJSON(t *testing.T, client *http.Client, url, token string) envelope {
	t.Helper()
	status, raw := do(t, client, http.MethodGet, url, token, nil)
	if status >= 400 {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}
	return decodeEnvelope(t, raw)
}

func getJSONStatus(t *testing.T, client *http.Client, url, token string, want int) envelope {
	t.Helper()
	status, raw := do(t, client, http.MethodGet, url, token, nil)
	if status != want {
		t.Fatalf("expected status %d, got %d: %s", want, status, string(raw))
	}
	return decodeEnvelope(t, raw)
}

func decodeEnvelope(t *testing.T, raw []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data %s: %v", string(env.Data), err)
	}
}

func envelopeErrorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	if m, ok := env.Error.(map[string]any); ok {
		if code, ok := m["code"].(string); ok {
			return code
		}
	}
	return ""
}

func assertValidationErrorField(t *testing.T, env envelope, field string) {
	t.Helper()
	if code := envelopeErrorCode(env); code != "validation_error" {
		t.Fatalf("expected validation_error, got %+v", env.Error)
	}
	errMap, _ := env.Error.(map[string]any)
	details, ok := errMap["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected details object, got %+v", errMap["details"])
	}
	fieldsRaw, ok := details["fields"].([]any)
	if !ok {
		t.Fatalf("expected details.fields array, got %+v", details["fields"])
	}
	for _, item := range fieldsRaw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if value, _ := entry["field"].(string); value == field {
			return
		}
	}
	t.Fatalf("expected validation field %q in %+v", field, fieldsRaw)
}
