package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/internal/routing"
	"github.com/loopwire/relay/internal/upstream"
	"github.com/loopwire/relay/pkg/oauthclient"
)

func newTestOrchestrator(t *testing.T, providers map[string]config.ProviderConfig, aliases map[string][]string) *Orchestrator {
	t.Helper()
	rt, err := routing.NewTable(aliases)
	if err != nil {
		t.Fatalf("routing.NewTable: %v", err)
	}
	cred, err := credentials.NewManager(t.TempDir()+"/store.yaml", oauthclient.New(nil))
	if err != nil {
		t.Fatalf("credentials.NewManager: %v", err)
	}
	return New(rt, providers, cred, upstream.New(0), nil)
}

func TestHandleBuffersAndConvertsIdentityFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	providers := map[string]config.ProviderConfig{
		"openai": {
			Kind:              "openai",
			Endpoint:          srv.URL,
			APIKey:            "sk-test",
			FallbackHTTPCodes: []int{429},
			Retry:             config.RetryPolicy{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 5, Multiplier: 2},
		},
	}
	o := newTestOrchestrator(t, providers, nil)

	body := `{"model":"openai/gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":false}`
	out, err := o.Handle(context.Background(), Inbound{
		Format:        FormatOpenAIChat,
		Body:          []byte(body),
		ModelOverride: "openai/gpt-4o",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if decoded["object"] != "chat.completion" {
		t.Fatalf("expected passthrough chat.completion object, got %+v", decoded)
	}
}

func TestHandleFallsBackToSecondSelectorOn429(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		reqModel := ""
		var decoded map[string]any
		if json.Unmarshal(buf, &decoded) == nil {
			reqModel, _ = decoded["model"].(string)
		}
		if strings.Contains(reqModel, "flaky") {
			calls = append(calls, "flaky")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		calls = append(calls, "steady")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	pc := config.ProviderConfig{
		Kind:              "openai",
		Endpoint:          srv.URL,
		APIKey:            "sk-test",
		FallbackHTTPCodes: []int{429},
		Retry:             config.RetryPolicy{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 5, Multiplier: 2},
	}
	providers := map[string]config.ProviderConfig{"openai": pc}
	o := newTestOrchestrator(t, providers, map[string][]string{
		"fast": {"openai/flaky", "openai/steady"},
	})

	body := `{"messages":[{"role":"user","content":"hi"}]}`
	out, err := o.Handle(context.Background(), Inbound{
		Format:        FormatOpenAIChat,
		Body:          []byte(body),
		ModelOverride: "fast",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after fallback, got %d", out.StatusCode)
	}
	if len(calls) != 2 || calls[0] != "flaky" || calls[1] != "steady" {
		t.Fatalf("expected flaky-then-steady call order, got %v", calls)
	}
}

func TestHandleDirectiveOverridesBodyModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","content":[{"type":"text","text":"ok"}],"role":"assistant","model":"x","stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	providers := map[string]config.ProviderConfig{
		"anthropic": {
			Kind:     "anthropic",
			Endpoint: srv.URL,
			APIKey:   "sk-ant",
			Retry:    config.RetryPolicy{MaxAttempts: 1, InitialBackoffMs: 1, MaxBackoffMs: 5, Multiplier: 2},
		},
	}
	o := newTestOrchestrator(t, providers, nil)

	body := `{"model":"openai/should-be-ignored","messages":[{"role":"user","content":"hi"}]}`
	out, err := o.Handle(context.Background(), Inbound{
		Format:         FormatOpenAIChat,
		Body:           []byte(body),
		ModelOverride:  "openai/should-be-ignored",
		SystemPromptLn: "<!-- anthropic/claude-3-5-sonnet -->",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	if !strings.Contains(gotPath, "/v1/messages") {
		t.Fatalf("expected the directive to route to anthropic, got upstream path %q", gotPath)
	}
}

func TestHandleUnknownAliasIsRouteError(t *testing.T) {
	o := newTestOrchestrator(t, map[string]config.ProviderConfig{}, nil)
	_, err := o.Handle(context.Background(), Inbound{
		Format:        FormatOpenAIChat,
		Body:          []byte(`{"messages":[]}`),
		ModelOverride: "nonexistent-alias",
	})
	var routeErr *routing.RouteError
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RouteError, got %T: %v", err, err)
	}
}
