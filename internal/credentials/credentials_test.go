package credentials

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/pkg/oauthclient"
)

func TestPlanAPIKeyOnly(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc := config.ProviderConfig{Kind: "anthropic", APIKey: "sk-test"}
	plan, err := m.Plan(context.Background(), "anthropic", pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 1 || plan[0].Kind != "api_key" || plan[0].APIKey != "sk-test" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestPlanUsesCachedOAuthTokenWithinSafetyMargin(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.entries["anthropic:default"] = Entry{
		AccessToken: "cached-token",
		ExpiresAt:   time.Now().Add(1 * time.Hour),
	}
	pc := config.ProviderConfig{
		Kind:  "anthropic",
		OAuth: &config.OAuthIdentity{Identity: "default", TokenURL: "https://example.com/token"},
	}
	plan, err := m.Plan(context.Background(), "anthropic", pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 1 || plan[0].Bearer != "cached-token" {
		t.Fatalf("expected cached oauth token to be used without refresh, got %+v", plan)
	}
}

func TestPlanFailsWithoutAnyCredential(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pc := config.ProviderConfig{Kind: "anthropic"}
	if _, err := m.Plan(context.Background(), "anthropic", pc); err == nil {
		t.Fatalf("expected AuthError when no credentials configured")
	}
}

func TestImportCollaboratorEntryPrefersNewerExpiry(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	older := Entry{AccessToken: "old", ExpiresAt: time.Now().Add(10 * time.Minute)}
	newer := Entry{AccessToken: "new", ExpiresAt: time.Now().Add(2 * time.Hour)}

	if err := m.ImportCollaboratorEntry("anthropic:default", older, "external-cli"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ImportCollaboratorEntry("anthropic:default", newer, "external-cli"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.entries["anthropic:default"].AccessToken; got != "new" {
		t.Fatalf("expected newer token to win, got %q", got)
	}

	// An older import after a newer one is already on file must not replace it.
	if err := m.ImportCollaboratorEntry("anthropic:default", older, "external-cli"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.entries["anthropic:default"].AccessToken; got != "new" {
		t.Fatalf("expected newer token to survive a stale re-import, got %q", got)
	}
}
