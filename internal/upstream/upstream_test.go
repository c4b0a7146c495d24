package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/loopwire/relay/internal/config"
)

func testRetryPolicy() config.RetryPolicy {
	return config.RetryPolicy{MaxAttempts: 3, InitialBackoffMs: 1, MaxBackoffMs: 5, Multiplier: 2}
}

func TestDoRetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	c := New(0)
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{},
		Retry:  testRetryPolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected eventual 200, got %d", resp.StatusCode)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoDoesNotRetry4xxExceptRequestTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	c := New(0)
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    u,
		Header: http.Header{},
		Retry:  testRetryPolicy(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 passthrough, got %d", resp.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable 4xx, got %d", calls)
	}
}

func TestDoRejectsInvalidHeaderName(t *testing.T) {
	u, _ := url.Parse("http://example.invalid")
	c := New(0)
	header := http.Header{}
	header["bad header"] = []string{"x"}
	_, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    u,
		Header: header,
		Retry:  testRetryPolicy(),
	})
	if err == nil {
		t.Fatalf("expected error for invalid header name")
	}
}
