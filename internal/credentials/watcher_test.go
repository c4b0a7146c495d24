package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/pkg/oauthclient"
)

func TestNewWatcherNilWhenNoCollaboratorFileConfigured(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := NewWatcher(m, map[string]config.ProviderConfig{
		"anthropic": {Kind: "anthropic", APIKey: "sk-test"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil watcher when no provider configures collaborator_file")
	}
}

func TestWatcherImportsExistingFileOnStartup(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	credFile := filepath.Join(dir, "collaborator.json")
	writeCollaboratorFile(t, credFile, collaboratorFile{
		AccessToken: "collab-token",
		ExpiresAt:   json.Number("9999999999"),
	})

	w, err := NewWatcher(m, map[string]config.ProviderConfig{
		"anthropic": {Kind: "anthropic", OAuth: &config.OAuthIdentity{Identity: "default", TokenURL: "https://example.test/token", CollaboratorFile: credFile}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatalf("expected non-nil watcher")
	}
	defer w.fsw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := m.entries["anthropic:default"]
		return ok && e.AccessToken == "collab-token"
	})
}

func TestWatcherPicksUpFileUpdates(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(filepath.Join(dir, "store.yaml"), oauthclient.New(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	credFile := filepath.Join(dir, "collaborator.json")
	writeCollaboratorFile(t, credFile, collaboratorFile{AccessToken: "first", ExpiresAt: json.Number("9999999999")})

	w, err := NewWatcher(m, map[string]config.ProviderConfig{
		"anthropic": {Kind: "anthropic", OAuth: &config.OAuthIdentity{Identity: "default", TokenURL: "https://example.test/token", CollaboratorFile: credFile}},
	})
	if err != nil || w == nil {
		t.Fatalf("unexpected error/nil watcher: %v", err)
	}
	defer w.fsw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.entries["anthropic:default"].AccessToken == "first"
	})

	writeCollaboratorFile(t, credFile, collaboratorFile{AccessToken: "second", ExpiresAt: json.Number("9999999999")})

	waitFor(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.entries["anthropic:default"].AccessToken == "second"
	})
}

func writeCollaboratorFile(t *testing.T, path string, cf collaboratorFile) {
	t.Helper()
	raw, err := json.Marshal(cf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
