// Package config loads and validates the proxy's on-disk configuration
// document: server bind settings, the routing table, and per-provider
// credentials and retry policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loopwire/relay/pkg/usageestimate"
)

// ProviderConfig is static per-provider data (§3 ProviderConfig).
type ProviderConfig struct {
	Kind              string          `yaml:"kind"`
	Endpoint          string          `yaml:"endpoint"`
	APIKey            string          `yaml:"api_key"`
	APIKeyFallback    bool            `yaml:"api_key_fallback"`
	FallbackHTTPCodes []int           `yaml:"fallback_http_codes"`
	Retry             RetryPolicy     `yaml:"retry"`
	OAuth             *OAuthIdentity  `yaml:"oauth"`
}

// RetryPolicy is C5's exponential-backoff policy for one provider.
type RetryPolicy struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms"`
	MaxBackoffMs    int     `yaml:"max_backoff_ms"`
	Multiplier      float64 `yaml:"multiplier"`
}

// OAuthIdentity names a credential-store entry and its refresh contract.
type OAuthIdentity struct {
	Identity      string `yaml:"identity"`
	TokenURL      string `yaml:"token_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	TokenPath     string `yaml:"token_path"`
	ExpiresInPath string `yaml:"expires_in_path"`

	// CollaboratorFile, if set, is the well-known credential file of an
	// external collaborator tool (e.g. a CLI's own oauth_creds.json) that
	// the proxy watches and imports from, per §4.4.
	CollaboratorFile string `yaml:"collaborator_file"`

	// IdentityHeaderName/IdentityHeaderValue name the header some OAuth
	// endpoints require alongside the bearer token to identify the caller
	// as the CLI the token was issued to (§4.4's Anthropic header table:
	// "an injected user-identification header required by the OAuth
	// path"). Anthropic's own console OAuth endpoint rejects otherwise
	// well-formed requests missing it. Empty means no header is injected.
	IdentityHeaderName  string `yaml:"identity_header_name"`
	IdentityHeaderValue string `yaml:"identity_header_value"`
}

// Config is the full loaded, validated, environment-expanded configuration.
type Config struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
		PidFile  string `yaml:"pid_file"`

		DrainTimeoutMs      int `yaml:"drain_timeout_ms"`
		BufferedTimeoutMs   int `yaml:"buffered_timeout_ms"`
		UpstreamAttemptMs   int `yaml:"upstream_attempt_timeout_ms"`
	} `yaml:"server"`

	Routing struct {
		Models map[string]RouteEntryYAML `yaml:"models"`
	} `yaml:"routing"`

	Providers map[string]ProviderConfig `yaml:"providers"`

	CredentialStore struct {
		Path string `yaml:"path"`
	} `yaml:"credential_store"`

	Logging struct {
		AccessLog bool `yaml:"access_log"`
	} `yaml:"logging"`

	// Pricing points at an optional local price catalog + override file
	// (see pkg/pricing); both are optional and cost annotation is disabled
	// when PriceFile is empty.
	Pricing struct {
		PriceFile     string `yaml:"price_file"`
		OverridesFile string `yaml:"overrides_file"`
	} `yaml:"pricing"`

	// UsageEstimation fills in usage counters a provider omits or zeroes,
	// per the usage/cost accounting supplement.
	UsageEstimation usageestimate.Config `yaml:"usage_estimation"`
}

// RouteEntryYAML accepts either a bare selector string or a list of them in
// the routing.models map, matching the config document's documented shape.
type RouteEntryYAML struct {
	values []string
}

func (r *RouteEntryYAML) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		r.values = []string{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		r.values = list
		return nil
	default:
		return fmt.Errorf("routing.models entry must be a string or list of strings")
	}
}

// Values returns the ordered selector strings for this route entry.
func (r RouteEntryYAML) Values() []string { return r.values }

// Load reads, expands, defaults, and validates the config document at path.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path comes from a trusted CLI flag or default location.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.Expand(string(raw), envLookup)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// envLookup implements ${VAR} expansion; unset variables expand to empty,
// matching the documented "${ENV_VAR} references resolved at load" contract.
func envLookup(name string) string {
	return os.Getenv(name)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Host) == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.DrainTimeoutMs <= 0 {
		cfg.Server.DrainTimeoutMs = 30_000
	}
	if cfg.Server.BufferedTimeoutMs <= 0 {
		cfg.Server.BufferedTimeoutMs = 5 * 60_000
	}
	if cfg.Server.UpstreamAttemptMs <= 0 {
		cfg.Server.UpstreamAttemptMs = 60_000
	}
	if strings.TrimSpace(cfg.CredentialStore.Path) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.CredentialStore.Path = dir + "/relay/credentials.yaml"
	}
	if !cfg.Logging.AccessLog {
		cfg.Logging.AccessLog = envBool("RELAY_ACCESS_LOG", true)
	}
	usageestimate.ApplyDefaults(&cfg.UsageEstimation)

	for key, pc := range cfg.Providers {
		if len(pc.FallbackHTTPCodes) == 0 {
			pc.FallbackHTTPCodes = []int{429}
		}
		if pc.Retry.MaxAttempts <= 0 {
			pc.Retry.MaxAttempts = 3
		}
		if pc.Retry.InitialBackoffMs <= 0 {
			pc.Retry.InitialBackoffMs = 1000
		}
		if pc.Retry.MaxBackoffMs <= 0 {
			pc.Retry.MaxBackoffMs = 30_000
		}
		if pc.Retry.Multiplier <= 0 {
			pc.Retry.Multiplier = 2
		}
		if pc.Kind == "anthropic" && pc.OAuth != nil && strings.TrimSpace(pc.OAuth.IdentityHeaderName) == "" {
			// Anthropic's OAuth token endpoint is only issued to, and only
			// honored for, the official Claude Code CLI client — matched by
			// this header/value pair, per the collaborator tooling this
			// proxy imports credentials from.
			pc.OAuth.IdentityHeaderName = "x-app"
			pc.OAuth.IdentityHeaderValue = "cli"
		}
		cfg.Providers[key] = pc
	}
}

func validate(cfg *Config) error {
	if len(cfg.Providers) == 0 {
		return errors.New("providers: at least one provider must be configured")
	}
	for key, pc := range cfg.Providers {
		switch pc.Kind {
		case "anthropic", "openai", "gemini", "openrouter":
		default:
			return fmt.Errorf("providers.%s.kind: unrecognized kind %q", key, pc.Kind)
		}
		if strings.TrimSpace(pc.Endpoint) == "" {
			return fmt.Errorf("providers.%s.endpoint: required", key)
		}
		if pc.OAuth == nil && strings.TrimSpace(pc.APIKey) == "" {
			return fmt.Errorf("providers.%s: must set api_key or oauth", key)
		}
		if pc.OAuth != nil {
			if strings.TrimSpace(pc.OAuth.Identity) == "" {
				return fmt.Errorf("providers.%s.oauth.identity: required", key)
			}
			if strings.TrimSpace(pc.OAuth.TokenURL) == "" {
				return fmt.Errorf("providers.%s.oauth.token_url: required", key)
			}
		}
	}
	for alias, entry := range cfg.Routing.Models {
		if len(entry.Values()) == 0 {
			return fmt.Errorf("routing.models.%s: must name at least one selector", alias)
		}
	}
	if err := usageestimate.Validate(&cfg.UsageEstimation); err != nil {
		return fmt.Errorf("usage_estimation: %w", err)
	}
	return nil
}

// RoutingModels flattens the YAML route entries into plain string slices for
// routing.NewTable.
func (c *Config) RoutingModels() map[string][]string {
	out := make(map[string][]string, len(c.Routing.Models))
	for alias, entry := range c.Routing.Models {
		out[alias] = entry.Values()
	}
	return out
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
