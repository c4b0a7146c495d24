// Package orchestrator implements the request-lifecycle state machine of
// §4.6: Parse -> Resolve -> [Attempt] -> (Success | TryNextAttempt | Fail),
// where Attempt = Convert -> Authenticate -> Dispatch -> Translate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/loopwire/relay/internal/config"
	"github.com/loopwire/relay/internal/credentials"
	"github.com/loopwire/relay/internal/eventsink"
	"github.com/loopwire/relay/internal/routing"
	"github.com/loopwire/relay/internal/selector"
	"github.com/loopwire/relay/internal/upstream"
	"github.com/loopwire/relay/pkg/apitransform"
	"github.com/loopwire/relay/pkg/apitypes"
	"github.com/loopwire/relay/pkg/pricing"
	"github.com/loopwire/relay/pkg/usageestimate"
)

// Orchestrator wires together the routing table, provider configuration,
// credential manager, and upstream client into the per-request state machine.
// It holds no per-request state itself — a Request context is exclusive to
// the goroutine serving that request, per §3's ownership rule.
type Orchestrator struct {
	Routing     *routing.Table
	Providers   map[string]config.ProviderConfig
	Credentials *credentials.Manager
	Upstream    *upstream.Client
	Sink        eventsink.Sink

	// Pricing and UsageEstimate are optional; nil disables cost annotation
	// on the structured-event sink entirely.
	Pricing       *pricing.Resolver
	UsageEstimate *usageestimate.Config
}

// New builds an Orchestrator. sink may be nil; a nil sink discards events.
func New(rt *routing.Table, providers map[string]config.ProviderConfig, cred *credentials.Manager, up *upstream.Client, sink eventsink.Sink) *Orchestrator {
	if sink == nil {
		sink = eventsink.Discard{}
	}
	return &Orchestrator{Routing: rt, Providers: providers, Credentials: cred, Upstream: up, Sink: sink}
}

// Inbound is the request context handed in from C7 (§3 "Request context").
type Inbound struct {
	Format         WireFormat
	Body           []byte
	ModelOverride  string // model string from the ingress route: the body's "model" field, or the URL path for Gemini
	SystemPromptLn string // first non-empty line of the system prompt, if any
	Streaming      bool
	ResponseWriter io.Writer // required when Streaming is true
	RequestID      string
}

// Outcome is a completed, ingress-format response.
type Outcome struct {
	StatusCode int
	Body       []byte // empty when Streamed
	Streamed   bool
}

// FallbackExhaustedError reports that every selector in the resolved list
// failed.
type FallbackExhaustedError struct {
	Failures []AttemptFailure
}

// AttemptFailure summarizes one failed selector attempt.
type AttemptFailure struct {
	Selector   string
	Reason     string
	StatusCode int
}

func (e *FallbackExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Selector, f.Reason))
	}
	return "orchestrator: all attempts failed: " + strings.Join(parts, "; ")
}

// CancelledError reports client disconnect or deadline expiry mid-request.
type CancelledError struct{ Err error }

func (e *CancelledError) Error() string { return fmt.Sprintf("orchestrator: cancelled: %v", e.Err) }
func (e *CancelledError) Unwrap() error { return e.Err }

// InternalError wraps an unexpected codec or wiring failure.
type InternalError struct{ Err error }

func (e *InternalError) Error() string { return fmt.Sprintf("orchestrator: internal: %v", e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }

// Handle runs the full state machine for one inbound request.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) (*Outcome, error) {
	modelInput, err := o.parseModelInput(in)
	if err != nil {
		return nil, err
	}

	selectors, err := o.Routing.Resolve(modelInput)
	if err != nil {
		return nil, err
	}

	var failures []AttemptFailure
	for i, sel := range selectors {
		if ctx.Err() != nil {
			return nil, &CancelledError{Err: ctx.Err()}
		}
		outcome, attemptErr, fallbackWorthy := o.attempt(ctx, in, sel, i, len(selectors))
		if attemptErr == nil {
			return outcome, nil
		}
		o.Sink.Emit(eventsink.Event{
			RequestID: in.RequestID,
			Kind:      "attempt_failed",
			Selector:  sel.Render(),
			Message:   attemptErr.Error(),
			Detail:    attemptReason(i, len(selectors)),
		})
		failures = append(failures, AttemptFailure{
			Selector:   sel.Render(),
			Reason:     attemptErr.Error(),
			StatusCode: statusOf(attemptErr),
		})
		if !fallbackWorthy || i == len(selectors)-1 {
			if !fallbackWorthy {
				return nil, attemptErr
			}
			return nil, &FallbackExhaustedError{Failures: failures}
		}
	}
	return nil, &FallbackExhaustedError{Failures: failures}
}

// parseModelInput implements the Parse and directive-precedence steps: a
// directive on the system prompt's first non-empty line wins outright over
// the body's model field (§4.2 step 1, testable property 3).
func (o *Orchestrator) parseModelInput(in Inbound) (string, error) {
	if directive, ok := routing.DirectiveFrom(in.SystemPromptLn); ok {
		return directive, nil
	}
	if strings.TrimSpace(in.ModelOverride) != "" {
		return in.ModelOverride, nil
	}
	return "", &selector.ParseError{Input: "", Reason: "no model specified in body or route"}
}

// attempt runs Convert -> Authenticate -> Dispatch -> Translate for one
// selector. It returns fallbackWorthy=true when the failure should advance
// to the next selector in the resolved list rather than fail the request
// outright (§4.6 TryNextAttempt, decision #3).
func (o *Orchestrator) attempt(ctx context.Context, in Inbound, sel selector.Selector, index, total int) (*Outcome, error, bool) {
	pc, ok := o.Providers[sel.ProviderKey]
	if !ok {
		return nil, &routing.RouteError{Alias: sel.ProviderKey, Reason: "no provider configured with this key"}, true
	}

	upstreamFormat, err := UpstreamFormat(pc.Kind)
	if err != nil {
		return nil, &InternalError{Err: err}, true
	}

	root, err := apitypes.ParseJSONObject(in.Body, "request")
	if err != nil {
		return nil, &selector.ParseError{Input: string(in.Body), Reason: err.Error()}, false
	}
	root = mergeParams(in.Format, root, sel.Params)
	applyVariant(pc.Kind, sel.Variant, root)
	root["model"] = sel.ModelID
	mergedBody, err := root.Marshal()
	if err != nil {
		return nil, &InternalError{Err: err}, false
	}

	upstreamBody, warnings, err := convertRequest(in.Format, upstreamFormat, mergedBody)
	if err != nil {
		var valErr *apitransform.ValidationError
		if errors.As(err, &valErr) {
			return nil, err, false
		}
		return nil, &InternalError{Err: err}, false
	}
	o.emitWarnings(in, sel, warnings)

	target, err := buildUpstreamURL(pc, sel, upstreamFormat, in.Streaming)
	if err != nil {
		return nil, &InternalError{Err: err}, false
	}

	plan, err := o.Credentials.Plan(ctx, sel.ProviderKey, pc)
	if err != nil {
		// AuthError does not advance to the next selector (§7 propagation
		// policy: credentials are per provider, not per call).
		return nil, err, false
	}

	var lastErr error
	for _, mat := range plan {
		reqURL := cloneURL(target)
		header := http.Header{}
		header.Set("Content-Type", "application/json")
		credentials.Attach(pc.Kind, mat, header, reqURL)

		resp, dispatchErr := o.Upstream.Do(ctx, upstream.Request{
			Method:    http.MethodPost,
			URL:       reqURL,
			Header:    header,
			Body:      upstreamBody,
			Streaming: in.Streaming,
			Retry:     pc.Retry,
		})
		if dispatchErr != nil {
			var upErr *upstream.UpstreamError
			if errors.As(dispatchErr, &upErr) && upErr.StatusCode != 0 && containsInt(pc.FallbackHTTPCodes, upErr.StatusCode) {
				lastErr = dispatchErr
				continue // intra-selector credential fallback
			}
			// Transport failures (StatusCode == 0) are unconditionally
			// selector-fallback-worthy per decision #3.
			return nil, dispatchErr, errors.As(dispatchErr, &upErr) && upErr.StatusCode == 0
		}

		if resp.StatusCode >= 400 {
			if containsInt(pc.FallbackHTTPCodes, resp.StatusCode) {
				lastErr = &upstream.UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("status in fallback set")}
				if in.Streaming {
					_ = resp.Body.Close()
				}
				continue
			}
			return o.failedResponse(in, upstreamFormat, resp)
		}

		if in.Streaming {
			outcome, streamErr, fallbackWorthy := o.streamResponse(ctx, in, upstreamFormat, resp)
			if streamErr == nil {
				o.emitStreamSuccess(in, sel, index, total)
			}
			return outcome, streamErr, fallbackWorthy
		}
		outBody, respWarnings, convErr := convertResponse(upstreamFormat, in.Format, resp.Buffered)
		if convErr != nil {
			return nil, &InternalError{Err: convErr}, false
		}
		o.emitWarnings(in, sel, respWarnings)
		o.emitSuccess(in, sel, mergedBody, outBody, index, total)
		return &Outcome{StatusCode: http.StatusOK, Body: outBody}, nil, false
	}
	// Every credential alternative hit a fallback-eligible status: this
	// selector is exhausted, advance to the next one.
	return nil, lastErr, true
}

// emitSuccess annotates the structured-event sink with usage counters and,
// when a pricing catalog is configured, an estimated cost — the "usage/cost
// accounting" supplemented feature. It never affects the client response.
func (o *Orchestrator) emitSuccess(in Inbound, sel selector.Selector, requestBody, responseBody []byte, index, total int) {
	usage, estimated := usageCounters(o.UsageEstimate, in.Format, sel.ModelID, requestBody, responseBody)
	detail := costSummary(o.Pricing, sel.ProviderKey, sel.ModelID, usage, estimated)
	reason := attemptReason(index, total)
	if detail != "" {
		detail = reason + "; " + detail
	} else {
		detail = reason
	}
	o.Sink.Emit(eventsink.Event{
		RequestID: in.RequestID,
		Kind:      "attempt_succeeded",
		Provider:  sel.ProviderKey,
		Selector:  sel.Render(),
		StatusCode: http.StatusOK,
		Detail:     detail,
	})
}

// attemptReason renders a short human-readable reason for why this selector
// was tried, mirroring the free-text `reason` field the original router
// attaches to each RoutingDecision for debugging (auth/router grounding in
// SPEC_FULL.md's SUPPLEMENTED FEATURES). index/total are 0-based/len of the
// resolved selector list.
func attemptReason(index, total int) string {
	if total <= 1 {
		return "explicit selector"
	}
	if index == 0 {
		return fmt.Sprintf("primary selector (1/%d)", total)
	}
	return fmt.Sprintf("alias fallback (%d/%d)", index+1, total)
}

// emitWarnings surfaces codec-level "dropped, never silent" warnings (§4.3)
// onto the structured-event sink, one Event per Warning, using the
// "warning" Kind eventsink.LogSink already maps to a warn-level log line.
func (o *Orchestrator) emitWarnings(in Inbound, sel selector.Selector, warnings apitransform.Warnings) {
	for _, w := range warnings {
		o.Sink.Emit(eventsink.Event{
			RequestID: in.RequestID,
			Kind:      "warning",
			Provider:  sel.ProviderKey,
			Selector:  sel.Render(),
			Message:   w.Field,
			Detail:    w.Reason,
		})
	}
}

// failedResponse surfaces a non-fallback-eligible 4xx/5xx as an UpstreamError
// carrying the upstream status, per §7's "surfaced as its upstream status if
// 4xx, else 502" client-visible mapping (the 502 substitution happens in C7).
func (o *Orchestrator) failedResponse(in Inbound, upstreamFormat WireFormat, resp *upstream.Response) (*Outcome, error, bool) {
	body := resp.Buffered
	if in.Streaming && resp.Body != nil {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		body = buf
	}
	return nil, &upstream.UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, truncate(body, 500))}, false
}

// streamResponse translates the upstream stream into the ingress format and
// writes it to in.ResponseWriter. Same-format streams and the pairs with an
// OpenAI chat side are relayed frame by frame; the Anthropic<->Gemini pairs
// read the whole upstream stream before writing any output (see
// adaptByteSSE). It ties reading the
// upstream body to ctx so a client disconnect discards partial bytes
// (§4.6 Cancellation, testable property 8).
func (o *Orchestrator) streamResponse(ctx context.Context, in Inbound, upstreamFormat WireFormat, resp *upstream.Response) (*Outcome, error, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = resp.Body.Close()
		case <-done:
		}
	}()
	defer func() { _ = resp.Body.Close() }()

	fn, ok := streamTransform(upstreamFormat, in.Format)
	var err error
	if !ok {
		_, err = io.Copy(in.ResponseWriter, resp.Body)
	} else {
		err = fn(resp.Body, in.ResponseWriter)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, &CancelledError{Err: ctx.Err()}, false
		}
		return nil, &InternalError{Err: err}, false
	}
	return &Outcome{StatusCode: http.StatusOK, Streamed: true}, nil, false
}

// emitStreamSuccess records a streamed attempt's outcome without a usage
// annotation: the response body was never buffered, so only request-side
// token estimation is possible, and providers rarely emit usage for the
// last SSE frame in a way this layer can rely on.
func (o *Orchestrator) emitStreamSuccess(in Inbound, sel selector.Selector, index, total int) {
	o.Sink.Emit(eventsink.Event{
		RequestID:  in.RequestID,
		Kind:       "attempt_succeeded",
		Provider:   sel.ProviderKey,
		Selector:   sel.Render(),
		StatusCode: http.StatusOK,
		Detail:     attemptReason(index, total),
	})
}

// buildUpstreamURL joins the provider endpoint with the format-specific
// path. Gemini's model name and stream/non-stream method selection live in
// the URL path rather than the body.
func buildUpstreamURL(pc config.ProviderConfig, sel selector.Selector, upstreamFormat WireFormat, streaming bool) (*url.URL, error) {
	base, err := url.Parse(strings.TrimRight(pc.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("provider endpoint: %w", err)
	}
	switch upstreamFormat {
	case FormatOpenAIChat:
		base.Path = joinPath(base.Path, "/chat/completions")
	case FormatAnthropic:
		base.Path = joinPath(base.Path, "/v1/messages")
	case FormatGemini:
		method := "generateContent"
		if streaming {
			method = "streamGenerateContent"
		}
		base.Path = joinPath(base.Path, "/v1beta/models/"+sel.ModelID+":"+method)
		if streaming {
			q := base.Query()
			q.Set("alt", "sse")
			base.RawQuery = q.Encode()
		}
	}
	return base, nil
}

func joinPath(base, suffix string) string {
	return strings.TrimRight(base, "/") + suffix
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// statusOf maps an orchestrator-surfaced error to the HTTP status it would
// produce, used only to annotate FallbackExhausted's per-selector summary —
// C7 performs the authoritative mapping per §7.
func statusOf(err error) int {
	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode != 0 {
		return upErr.StatusCode
	}
	var authErr *credentials.AuthError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized
	}
	var routeErr *routing.RouteError
	if errors.As(err, &routeErr) {
		return http.StatusBadRequest
	}
	var parseErr *selector.ParseError
	if errors.As(err, &parseErr) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
