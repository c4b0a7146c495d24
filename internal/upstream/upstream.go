// Package upstream is the shared HTTP client that dispatches converted
// request bodies to a provider's endpoint, retrying with exponential backoff
// on transient failure and passing streaming responses through untouched.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/net/http/httpguts"

	"github.com/loopwire/relay/internal/config"
)

// Client wraps a shared, connection-pooled *http.Client.
type Client struct {
	http *http.Client
}

// New builds a Client with connection pooling tuned for a small number of
// long-lived upstream hosts and a configurable idle timeout.
func New(idleTimeout time.Duration) *Client {
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     idleTimeout,
		ForceAttemptHTTP2:   true,
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// Request describes one upstream dispatch.
type Request struct {
	Method    string
	URL       *url.URL
	Header    http.Header
	Body      []byte
	Streaming bool
	Retry     config.RetryPolicy
}

// Response is either a buffered body or, when Streaming, an open body the
// caller must close after reading.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser // caller closes
	Buffered   []byte        // set when !Streaming
}

// UpstreamError wraps a non-retryable or retry-exhausted upstream failure.
type UpstreamError struct {
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream: transport error: %v", e.Err)
	}
	return fmt.Sprintf("upstream: status %d: %v", e.StatusCode, e.Err)
}
func (e *UpstreamError) Unwrap() error { return e.Err }

// Do executes req, retrying non-streaming requests per Retry on network
// errors, TLS failures, and 408/500/502/503/504. Streaming requests are
// never retried once a response has been read from the wire — a failure
// before the first byte is treated as a plain non-streaming failure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Streaming {
		return c.doOnce(ctx, req)
	}
	return c.doWithRetry(ctx, req)
}

func (c *Client) doWithRetry(ctx context.Context, req Request) (*Response, error) {
	policy := req.Retry
	var backoff retry.Backoff = newProviderBackoff(policy)
	backoff = retry.WithMaxRetries(uint64(policy.MaxAttempts-1), backoff)
	backoff = retry.WithCappedDuration(time.Duration(policy.MaxBackoffMs)*time.Millisecond, backoff)
	backoff = retry.WithJitter(200*time.Millisecond, backoff)

	var last *Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, doErr := c.doOnce(ctx, req)
		if doErr != nil {
			var upErr *UpstreamError
			if errors.As(doErr, &upErr) && upErr.StatusCode == 0 {
				return retry.RetryableError(doErr)
			}
			return doErr
		}
		last = resp
		if isRetryableStatus(resp.StatusCode) {
			return retry.RetryableError(&UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("retryable upstream status")})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// newProviderBackoff builds an exponential retry.Backoff honoring the
// provider's configured Multiplier, generalizing retry.NewExponential
// (which only ever doubles) to the per-provider growth factor §5's
// RetryPolicy names.
func newProviderBackoff(policy config.RetryPolicy) retry.Backoff {
	base := time.Duration(policy.InitialBackoffMs) * time.Millisecond
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	var attempt float64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		interval := time.Duration(float64(base) * math.Pow(multiplier, attempt))
		attempt++
		return interval, false
	})
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	for name := range req.Header {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, &UpstreamError{Err: fmt.Errorf("invalid upstream header name %q", name)}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytesReader(req.Body))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	httpReq.Header = req.Header.Clone()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	if req.Streaming {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	buf, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: err}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Buffered: buf}, nil
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}
