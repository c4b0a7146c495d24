package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/internal/eventsink"
	"github.com/loopwire/relay/internal/orchestrator"
	"github.com/loopwire/relay/internal/routing"
	"github.com/loopwire/relay/internal/upstream"
	"github.com/loopwire/relay/pkg/oauthclient"
)

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "error"
	cfg.Server.DrainTimeoutMs = 1000
	cfg.Logging.AccessLog = false
	cfg.Providers = map[string]config.ProviderConfig{
		"openai": {
			Kind:              "openai",
			Endpoint:          upstreamURL,
			APIKey:            "sk-test",
			FallbackHTTPCodes: []int{429},
			Retry:             config.RetryPolicy{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 5, Multiplier: 2},
		},
	}

	rt, err := routing.NewTable(nil)
	if err != nil {
		t.Fatalf("routing.NewTable: %v", err)
	}
	cred, err := credentials.NewManager(t.TempDir()+"/store.yaml", oauthclient.New(nil))
	if err != nil {
		t.Fatalf("credentials.NewManager: %v", err)
	}
	ring := eventsink.NewRingBuffer(50)
	orch := orchestrator.New(rt, cfg.Providers, cred, upstream.New(0), ring)
	return New(cfg, orch, nil, ring)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestChatCompletionsRoundTripsThroughUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)
	body := `{"model":"openai/gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "chat.completion") {
		t.Fatalf("expected passthrough body, got %s", rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header to be set")
	}
}

func TestUnknownAliasReturns400WithFormattedError(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	body := `{"model":"nonexistent-alias","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid_request_error") {
		t.Fatalf("expected openai-shaped error body, got %s", rec.Body.String())
	}
}

func TestGeminiPathParsesModelAndAction(t *testing.T) {
	model, action, err := parseGeminiModelAction("models/gemini-1.5-pro:generateContent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-1.5-pro" || action != "generateContent" {
		t.Fatalf("got model=%q action=%q", model, action)
	}
}

func TestRecentEventsReflectsSuccessfulAttempt(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3}}`))
	}))
	defer upstream.Close()

	s := newTestServer(t, upstream.URL)
	body := `{"model":"openai/gpt-4o","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/debug/recent", nil)
	rec2 := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	if !strings.Contains(rec2.Body.String(), "attempt_succeeded") {
		t.Fatalf("expected a recorded attempt_succeeded event, got %s", rec2.Body.String())
	}
}

func TestDrainMiddlewareRejectsNewRequests(t *testing.T) {
	s := newTestServer(t, "http://unused.invalid")
	s.draining = 1
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", rec.Code)
	}
}
