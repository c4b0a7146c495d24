package apitransform

import "testing"

func TestMapClaudeMessagesRequestToGeminiGenerateContentRequest(t *testing.T) {
	in := []byte(`{
  "model":"claude-3-5-sonnet",
  "max_tokens":256,
  "system":"be terse",
  "messages":[{"role":"user","content":"hi"}]
}`)
	out, err := MapClaudeMessagesRequestToGeminiGenerateContentRequest(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(out)
	if !containsAll(s, `"contents"`, `"hi"`, `"system_instruction"`) {
		t.Fatalf("unexpected output: %s", s)
	}
}

func TestMapGeminiGenerateContentRequestToClaudeMessagesRequest(t *testing.T) {
	in := []byte(`{
  "model":"claude-3-5-sonnet",
  "systemInstruction":{"parts":[{"text":"be terse"}]},
  "contents":[{"role":"user","parts":[{"text":"hi"}]}]
}`)
	out, err := MapGeminiGenerateContentRequestToClaudeMessagesRequest(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(out)
	if !containsAll(s, `"messages"`, `"hi"`) {
		t.Fatalf("unexpected output: %s", s)
	}
}
