package selector

import "testing"

func TestParseBasic(t *testing.T) {
	s, err := Parse("anthropic/claude-3-5-sonnet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ProviderKey != "anthropic" || s.ModelID != "claude-3-5-sonnet" || s.Variant != "" {
		t.Fatalf("unexpected selector: %+v", s)
	}
}

func TestParseNestedModelIDWithVariant(t *testing.T) {
	s, err := Parse("openrouter/openai/gpt-4o:groq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ProviderKey != "openrouter" || s.ModelID != "openai/gpt-4o" || s.Variant != "groq" {
		t.Fatalf("unexpected selector: %+v", s)
	}
}

func TestParseParams(t *testing.T) {
	s, err := Parse("gemini/gemini-2.5-pro?thoughts=true&temperature=0.2&stop=a,b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Params.Thoughts == nil || !*s.Params.Thoughts {
		t.Fatalf("expected thoughts=true")
	}
	if s.Params.Temperature == nil || *s.Params.Temperature != 0.2 {
		t.Fatalf("expected temperature=0.2, got %+v", s.Params.Temperature)
	}
	if len(s.Params.Stop) != 2 || s.Params.Stop[0] != "a" || s.Params.Stop[1] != "b" {
		t.Fatalf("unexpected stop list: %+v", s.Params.Stop)
	}
}

func TestParseUnknownParamPassthrough(t *testing.T) {
	s, err := Parse("openai/gpt-4o?custom_flag=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Params.Extra["custom_flag"] != "1" {
		t.Fatalf("expected custom_flag to pass through, got %+v", s.Params.Extra)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"",
		"no-slash-alias",
		"/missing-provider",
		"provider/",
		"openai/gpt-4o?temperature=abc",
		"openai/gpt-4o?temperature=1&temperature=2",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected error for input %q", c)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	cases := []string{
		"anthropic/claude-3-5-sonnet",
		"openrouter/openai/gpt-4o:groq",
		"gemini/gemini-2.5-pro?effort=high&max_tokens=256&temperature=0.2",
	}
	for _, in := range cases {
		s, err := Parse(in)
		if err != nil {
			t.Fatalf("parse(%q): unexpected error: %v", in, err)
		}
		if got := s.Render(); got != in {
			t.Fatalf("render round trip: parse(%q).Render() = %q", in, got)
		}
	}
}

func TestIsSelector(t *testing.T) {
	if IsSelector("fast") {
		t.Fatalf("expected alias key to not be a selector")
	}
	if !IsSelector("openai/gpt-4o") {
		t.Fatalf("expected selector string to be recognized")
	}
}
