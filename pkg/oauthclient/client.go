// Package oauthclient performs OAuth2 refresh-token exchanges against a
// provider's token endpoint, coalescing concurrent refreshes for the same
// cache key onto a single network round-trip.
package oauthclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Token is the material returned by a successful refresh.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// RefreshInput describes one provider's token-endpoint contract.
type RefreshInput struct {
	CacheKey string

	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string

	TokenPath     string
	ExpiresInPath string
	TokenTypePath string
	Timeout       time.Duration
	FallbackTTL   time.Duration
}

// Client refreshes and caches OAuth access tokens keyed by an arbitrary
// caller-supplied identity string (typically "<provider>:<identity>").
type Client struct {
	httpClient *http.Client

	mu       sync.Mutex
	inFlight map[string]*flight
}

type flight struct {
	done  chan struct{}
	token Token
	err   error
}

// New builds a Client. A nil httpClient defaults to http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		inFlight:   map[string]*flight{},
	}
}

// Refresh exchanges a refresh_token for a fresh access token. Concurrent
// callers sharing the same CacheKey coalesce onto one HTTP round-trip; every
// caller sees the same result.
func (c *Client) Refresh(ctx context.Context, in RefreshInput) (Token, error) {
	key := strings.TrimSpace(in.CacheKey)
	if key == "" {
		return Token{}, errors.New("oauthclient: cache key is empty")
	}
	if strings.TrimSpace(in.TokenURL) == "" {
		return Token{}, errors.New("oauthclient: token url is empty")
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		return Token{}, errors.New("oauthclient: refresh token is empty")
	}
	if in.Timeout <= 0 {
		in.Timeout = 10 * time.Second
	}
	if in.FallbackTTL <= 0 {
		in.FallbackTTL = 30 * time.Minute
	}

	f, owner := c.beginFlight(key)
	if !owner {
		<-f.done
		return f.token, f.err
	}
	defer c.endFlight(key, f)

	tok, err := c.requestToken(ctx, in)
	f.token, f.err = tok, err
	return tok, err
}

func (c *Client) beginFlight(cacheKey string) (*flight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inFlight[cacheKey]; ok && f != nil {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	c.inFlight[cacheKey] = f
	return f, true
}

func (c *Client) endFlight(cacheKey string, f *flight) {
	c.mu.Lock()
	if cur, ok := c.inFlight[cacheKey]; ok && cur == f {
		delete(c.inFlight, cacheKey)
	}
	c.mu.Unlock()
	close(f.done)
}

func (c *Client) requestToken(ctx context.Context, in RefreshInput) (Token, error) {
	reqCtx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", in.RefreshToken)
	if in.ClientID != "" {
		form.Set("client_id", in.ClientID)
	}
	if in.ClientSecret != "" {
		form.Set("client_secret", in.ClientSecret)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, in.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, &RefreshError{Transport: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, &RefreshError{Transport: true, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Token{}, &RefreshError{
			StatusCode: resp.StatusCode,
			Permanent:  resp.StatusCode >= 400 && resp.StatusCode < 500,
			Err:        fmt.Errorf("oauth token endpoint failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))),
		}
	}

	var root map[string]any
	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return Token{}, &RefreshError{Permanent: true, Err: fmt.Errorf("oauth token endpoint returned non-json response: %w", err)}
	}

	tokenPath := firstNonEmpty(strings.TrimSpace(in.TokenPath), "$.access_token")
	expiresPath := firstNonEmpty(strings.TrimSpace(in.ExpiresInPath), "$.expires_in")
	typePath := firstNonEmpty(strings.TrimSpace(in.TokenTypePath), "$.token_type")

	access := strings.TrimSpace(getStringByPath(root, tokenPath))
	if access == "" {
		return Token{}, &RefreshError{Permanent: true, Err: fmt.Errorf("oauth token not found at %s", tokenPath)}
	}
	tokenType := strings.TrimSpace(getStringByPath(root, typePath))
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiresIn := int(getFloatByPath(root, expiresPath))
	if expiresIn <= 0 {
		expiresIn = int(in.FallbackTTL.Seconds())
	}
	if expiresIn <= 0 {
		expiresIn = 1800
	}
	return Token{
		AccessToken: access,
		TokenType:   tokenType,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// RefreshError distinguishes a transport failure or 5xx (transient — the
// caller should keep using a not-yet-expired cached token) from a 4xx or
// malformed response (permanent — the caller should invalidate the entry).
type RefreshError struct {
	Transport  bool
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *RefreshError) Error() string { return e.Err.Error() }
func (e *RefreshError) Unwrap() error { return e.Err }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
