// Package credentials manages per-provider OAuth token caching and refresh,
// falling back to a static API key, per §4.4.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/pkg/oauthclient"
)

// refreshSafetyMargin is how far ahead of expiry a cached token is still
// considered usable without a refresh round-trip.
const refreshSafetyMargin = 10 * time.Minute

// Entry is a per-provider, per-identity OAuth credential (§3 CredentialEntry).
type Entry struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
	ProjectID    string    `yaml:"project_id,omitempty"`
	SourceTag    string    `yaml:"source_tag,omitempty"`

	invalid bool
}

func (e Entry) validAt(now time.Time) bool {
	return !e.invalid && e.AccessToken != "" && now.Add(refreshSafetyMargin).Before(e.ExpiresAt)
}

// AuthMaterial is one alternative in a credential plan.
type AuthMaterial struct {
	Kind      string // "oauth" or "api_key"
	Bearer    string
	APIKey    string
	ProjectID string

	// IdentityHeaderName/IdentityHeaderValue carry the OAuth path's
	// required caller-identification header (§4.4), when the provider's
	// oauth config names one. Empty on the api_key alternative.
	IdentityHeaderName  string
	IdentityHeaderValue string
}

// AuthError reports that no usable credential exists for a provider.
type AuthError struct {
	Provider string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credentials: %s: %s (run `relay auth import %s` to authorize)", e.Provider, e.Reason, e.Provider)
}

// Manager owns the in-memory credential cache plus its on-disk persistence.
type Manager struct {
	storePath string
	oauth     *oauthclient.Client

	mu      sync.Mutex
	entries map[string]Entry // key: "<provider>:<identity>"
}

// NewManager constructs a Manager backed by storePath, loading any entries
// already persisted there.
func NewManager(storePath string, httpClient *oauthclient.Client) (*Manager, error) {
	m := &Manager{
		storePath: storePath,
		oauth:     httpClient,
		entries:   map[string]Entry{},
	}
	if err := m.loadStore(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadStore() error {
	if strings.TrimSpace(m.storePath) == "" {
		return nil
	}
	// #nosec G304 -- path comes from trusted config.
	raw, err := os.ReadFile(m.storePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("credentials: read store: %w", err)
	}
	var onDisk map[string]Entry
	if err := yaml.Unmarshal(raw, &onDisk); err != nil {
		return fmt.Errorf("credentials: parse store: %w", err)
	}
	m.mu.Lock()
	for k, v := range onDisk {
		v.SourceTag = firstNonEmpty(v.SourceTag, "relay-store")
		m.entries[k] = v
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) persist() error {
	if strings.TrimSpace(m.storePath) == "" {
		return nil
	}
	m.mu.Lock()
	snapshot := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.Unlock()

	raw, err := yaml.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.storePath), 0o700); err != nil {
		return err
	}
	tmp := m.storePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.storePath)
}

// ImportCollaboratorEntry merges a credential read from an external
// collaborator tool's own file. The newer expires_at wins, and an equal
// expires_at replaces the stored entry; the proxy never writes back to the
// collaborator's file, only into its own store.
func (m *Manager) ImportCollaboratorEntry(key string, incoming Entry, sourceTag string) error {
	incoming.SourceTag = sourceTag
	m.mu.Lock()
	existing, ok := m.entries[key]
	replace := !ok || !incoming.ExpiresAt.Before(existing.ExpiresAt)
	if replace {
		m.entries[key] = incoming
	}
	m.mu.Unlock()
	if replace {
		return m.persist()
	}
	return nil
}

// Plan resolves the ordered credential alternatives for a provider config,
// per §4.4's construction order: OAuth first when configured, then the
// static API key when api_key_fallback is set or OAuth is absent.
func (m *Manager) Plan(ctx context.Context, providerKey string, pc config.ProviderConfig) ([]AuthMaterial, error) {
	var plan []AuthMaterial

	if pc.OAuth != nil {
		mat, err := m.oauthMaterial(ctx, providerKey, pc)
		if err == nil {
			plan = append(plan, mat)
		} else if !errors.As(err, new(*AuthError)) {
			return nil, err
		}
	}
	if pc.OAuth == nil || pc.APIKeyFallback {
		if strings.TrimSpace(pc.APIKey) != "" {
			plan = append(plan, AuthMaterial{Kind: "api_key", APIKey: pc.APIKey})
		}
	}
	if len(plan) == 0 {
		return nil, &AuthError{Provider: providerKey, Reason: "no usable credentials"}
	}
	return plan, nil
}

func (m *Manager) cacheKey(providerKey string, identity string) string {
	return providerKey + ":" + identity
}

func (m *Manager) oauthMaterial(ctx context.Context, providerKey string, pc config.ProviderConfig) (AuthMaterial, error) {
	key := m.cacheKey(providerKey, pc.OAuth.Identity)
	oauthMat := func(bearer, projectID string) AuthMaterial {
		return AuthMaterial{
			Kind:                "oauth",
			Bearer:              bearer,
			ProjectID:           projectID,
			IdentityHeaderName:  pc.OAuth.IdentityHeaderName,
			IdentityHeaderValue: pc.OAuth.IdentityHeaderValue,
		}
	}

	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return AuthMaterial{}, &AuthError{Provider: providerKey, Reason: "no oauth entry imported or authorized"}
	}
	if entry.validAt(time.Now()) {
		return oauthMat(entry.AccessToken, entry.ProjectID), nil
	}
	if entry.RefreshToken == "" {
		return AuthMaterial{}, &AuthError{Provider: providerKey, Reason: "oauth token expired and no refresh token on file"}
	}

	tok, err := m.oauth.Refresh(ctx, oauthclient.RefreshInput{
		CacheKey:      key,
		TokenURL:      pc.OAuth.TokenURL,
		ClientID:      pc.OAuth.ClientID,
		ClientSecret:  pc.OAuth.ClientSecret,
		RefreshToken:  entry.RefreshToken,
		TokenPath:     pc.OAuth.TokenPath,
		ExpiresInPath: pc.OAuth.ExpiresInPath,
	})
	if err != nil {
		var refreshErr *oauthclient.RefreshError
		if errors.As(err, &refreshErr) && refreshErr.Permanent {
			m.mu.Lock()
			entry.invalid = true
			m.entries[key] = entry
			m.mu.Unlock()
			return AuthMaterial{}, &AuthError{Provider: providerKey, Reason: "oauth refresh rejected: " + err.Error()}
		}
		// Transient failure: fall back to the cached token if it's still
		// nominally valid at all (ignoring the safety margin), else fail.
		if entry.AccessToken != "" && time.Now().Before(entry.ExpiresAt) {
			return oauthMat(entry.AccessToken, entry.ProjectID), nil
		}
		return AuthMaterial{}, &AuthError{Provider: providerKey, Reason: "oauth refresh failed: " + err.Error()}
	}

	entry.AccessToken = tok.AccessToken
	entry.ExpiresAt = tok.ExpiresAt
	entry.invalid = false
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	if err := m.persist(); err != nil {
		return AuthMaterial{}, err
	}
	return oauthMat(entry.AccessToken, entry.ProjectID), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
