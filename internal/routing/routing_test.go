package routing

import "testing"

func TestNewTableRejectsAliasOfAlias(t *testing.T) {
	_, err := NewTable(map[string][]string{
		"fast": {"other-alias"},
	})
	if err == nil {
		t.Fatalf("expected alias-of-alias to be rejected at load time")
	}
}

func TestResolveInlineSelector(t *testing.T) {
	tbl, err := NewTable(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tbl.Resolve("anthropic/claude-3-5-sonnet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ProviderKey != "anthropic" {
		t.Fatalf("unexpected resolution: %+v", got)
	}
}

func TestResolveAliasFallbackChain(t *testing.T) {
	tbl, err := NewTable(map[string][]string{
		"fast": {"openrouter/a?temperature=0.2", "openrouter/b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tbl.Resolve("fast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ModelID != "a" || got[1].ModelID != "b" {
		t.Fatalf("unexpected resolution: %+v", got)
	}
}

func TestResolveUnknownAlias(t *testing.T) {
	tbl, _ := NewTable(map[string][]string{"fast": {"openai/gpt-4o"}})
	_, err := tbl.Resolve("missing")
	if err == nil {
		t.Fatalf("expected error for unknown alias")
	}
	re, ok := err.(*RouteError)
	if !ok {
		t.Fatalf("expected *RouteError, got %T", err)
	}
	if len(re.Aliases) != 1 || re.Aliases[0] != "fast" {
		t.Fatalf("expected available aliases to be enumerated, got %+v", re.Aliases)
	}
}

func TestDirectiveFrom(t *testing.T) {
	val, ok := DirectiveFrom("<!-- gemini/gemini-2.5-pro?thoughts=true -->")
	if !ok || val != "gemini/gemini-2.5-pro?thoughts=true" {
		t.Fatalf("unexpected directive parse: %q ok=%v", val, ok)
	}
	if _, ok := DirectiveFrom("not a directive"); ok {
		t.Fatalf("expected non-directive line to be rejected")
	}
	if _, ok := DirectiveFrom(""); ok {
		t.Fatalf("expected empty line to be rejected")
	}
}
