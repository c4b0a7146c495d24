package apitransform

import "testing"

func TestMapOpenAIChatCompletionsChunkToGeminiResponse_Text(t *testing.T) {
	in := []byte(`{
  "model":"gpt-4o",
  "choices":[{"index":0,"delta":{"content":"hello"}}]
}`)
	out, ok, err := MapOpenAIChatCompletionsChunkToGeminiResponse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected payload to be emitted")
	}
	s := string(out)
	if !containsAll(s, `"candidates"`, `"hello"`, `"modelVersion":"gpt-4o"`) {
		t.Fatalf("unexpected output: %s", s)
	}
}

func TestMapOpenAIChatCompletionsChunkToGeminiResponse_ToolCall(t *testing.T) {
	in := []byte(`{
  "choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":\"SF\"}"}}]},"finish_reason":"tool_calls"}]
}`)
	out, ok, err := MapOpenAIChatCompletionsChunkToGeminiResponse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected payload to be emitted")
	}
	s := string(out)
	if !containsAll(s, `"functionCall"`, `"get_weather"`, `"city":"SF"`, `"finishReason"`) {
		t.Fatalf("unexpected output: %s", s)
	}
}

func TestMapOpenAIChatCompletionsChunkToGeminiResponse_EmptyChunkSuppressed(t *testing.T) {
	in := []byte(`{"choices":[{"index":0,"delta":{}}]}`)
	_, ok, err := MapOpenAIChatCompletionsChunkToGeminiResponse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected empty delta chunk to be suppressed")
	}
}

func TestMapOpenAIChatCompletionsChunkToGeminiResponse_UsageOnly(t *testing.T) {
	in := []byte(`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":3}}`)
	out, ok, err := MapOpenAIChatCompletionsChunkToGeminiResponse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected usage-only chunk to be emitted")
	}
	if !containsAll(string(out), `"usageMetadata"`, `"promptTokenCount":5`, `"totalTokenCount":8`) {
		t.Fatalf("unexpected output: %s", out)
	}
}
