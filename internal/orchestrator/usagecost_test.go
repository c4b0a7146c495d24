package orchestrator

import (
	"testing"

	"github.com/loopwire/relay/pkg/usageestimate"
)

func TestUsageCountersPrefersUpstreamUsage(t *testing.T) {
	cfg := &usageestimate.Config{Enabled: true, EstimateWhenMissingOrZero: true}
	resp := []byte(`{"usage":{"prompt_tokens":12,"completion_tokens":34}}`)
	usage, estimated := usageCounters(cfg, FormatOpenAIChat, "gpt-4o", []byte(`{}`), resp)
	if estimated {
		t.Fatalf("expected upstream usage to be used, not estimated")
	}
	if usage["input_tokens"] != 12 || usage["output_tokens"] != 34 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestUsageCountersEstimatesWhenMissing(t *testing.T) {
	cfg := &usageestimate.Config{Enabled: true, EstimateWhenMissingOrZero: true}
	resp := []byte(`{"id":"1"}`)
	usage, estimated := usageCounters(cfg, FormatOpenAIChat, "gpt-4o", []byte(`{"messages":[{"role":"user","content":"hello there"}]}`), resp)
	if !estimated {
		t.Fatalf("expected estimation fallback")
	}
	if usage["input_tokens"].(int) <= 0 {
		t.Fatalf("expected a positive estimated input token count, got %+v", usage)
	}
}

func TestUsageCountersGeminiShape(t *testing.T) {
	cfg := &usageestimate.Config{Enabled: true, EstimateWhenMissingOrZero: true}
	resp := []byte(`{"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":9}}`)
	usage, estimated := usageCounters(cfg, FormatGemini, "gemini-1.5-pro", []byte(`{}`), resp)
	if estimated {
		t.Fatalf("expected upstream usage to be used, not estimated")
	}
	if usage["input_tokens"] != 7 || usage["output_tokens"] != 9 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestUsageCountersDisabledEstimationLeavesUsageEmpty(t *testing.T) {
	cfg := &usageestimate.Config{Enabled: false}
	usage, estimated := usageCounters(cfg, FormatOpenAIChat, "gpt-4o", []byte(`{}`), []byte(`{"id":"1"}`))
	if estimated {
		t.Fatalf("expected no estimation when disabled")
	}
	if len(usage) != 0 {
		t.Fatalf("expected no usage extracted, got %+v", usage)
	}
}

func TestCostSummaryEmptyWithoutResolver(t *testing.T) {
	if got := costSummary(nil, "openai", "gpt-4o", map[string]any{"input_tokens": 1}, false); got != "" {
		t.Fatalf("expected empty summary without a resolver, got %q", got)
	}
}
