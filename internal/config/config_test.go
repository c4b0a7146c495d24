package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_RELAY_ANTHROPIC_KEY", "sk-test-123")
	path := writeTempConfig(t, `
providers:
  anthropic:
    kind: anthropic
    endpoint: https://api.anthropic.com
    api_key: "${TEST_RELAY_ANTHROPIC_KEY}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8787 {
		t.Fatalf("expected default host/port, got %+v", cfg.Server)
	}
	pc := cfg.Providers["anthropic"]
	if pc.APIKey != "sk-test-123" {
		t.Fatalf("expected env expansion, got %q", pc.APIKey)
	}
	if len(pc.FallbackHTTPCodes) != 1 || pc.FallbackHTTPCodes[0] != 429 {
		t.Fatalf("expected default fallback codes, got %+v", pc.FallbackHTTPCodes)
	}
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  weird:
    kind: not-a-kind
    endpoint: https://example.com
    api_key: x
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unrecognized provider kind")
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  anthropic:
    kind: anthropic
    endpoint: https://api.anthropic.com
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when neither api_key nor oauth is set")
	}
}

func TestRoutingModelsAcceptsScalarAndList(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  anthropic:
    kind: anthropic
    endpoint: https://api.anthropic.com
    api_key: x
routing:
  models:
    solo: anthropic/claude-3-5-sonnet
    fast:
      - anthropic/claude-3-5-haiku
      - anthropic/claude-3-5-sonnet
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	models := cfg.RoutingModels()
	if len(models["solo"]) != 1 {
		t.Fatalf("expected scalar route entry to become a one-element list, got %+v", models["solo"])
	}
	if len(models["fast"]) != 2 {
		t.Fatalf("expected list route entry preserved, got %+v", models["fast"])
	}
}
