// Package eventsink is the structured-event fan-out used for observability:
// per-attempt outcomes, codec warnings, and credential events. It is
// grounded on the teacher's onr-core/pkg/trafficdump secret-masking idiom,
// generalized away from that package's default full byte-level request/
// response dump — this sink only ever carries small structured fields, never
// raw bodies, unless a caller explicitly attaches one under a truncated,
// masked "detail" field.
package eventsink

import (
	"strings"
	"sync"
	"time"

	"github.com/loopwire/relay/internal/logx"
)

// Event is one structured occurrence: an attempt outcome, a codec warning
// (unsupported field dropped, unknown upstream stream event), or a
// credential-refresh outcome.
type Event struct {
	Time       time.Time
	RequestID  string
	Kind       string // "attempt_failed", "attempt_succeeded", "warning", "auth_refresh_failed"
	Provider   string
	Selector   string
	StatusCode int
	LatencyMs  int64
	Message    string
	Detail     string // masked, truncated free-form context; empty in the common case
}

// Sink receives Events. Implementations must not block the request path for
// long; RingBuffer holds its mutex only for a slot write, and LogSink takes
// no lock of its own, writing one logx line per event.
type Sink interface {
	Emit(Event)
}

// Discard drops every event. Used when no sink is configured.
type Discard struct{}

func (Discard) Emit(Event) {}

// LogSink writes each event as one structured logx line.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	fields := map[string]any{
		"request_id": e.RequestID,
		"provider":   e.Provider,
		"selector":   e.Selector,
	}
	if e.StatusCode != 0 {
		fields["status"] = e.StatusCode
	}
	if e.LatencyMs != 0 {
		fields["latency_ms"] = e.LatencyMs
	}
	if e.Detail != "" {
		fields["detail"] = maskDetail(e.Detail)
	}
	logx.Event(levelFor(e.Kind), e.Message, fields)
}

func levelFor(kind string) logx.Level {
	switch kind {
	case "attempt_failed", "auth_refresh_failed":
		return logx.LevelWarn
	case "warning":
		return logx.LevelWarn
	default:
		return logx.LevelInfo
	}
}

// RingBuffer retains the last N events in memory for the diagnose TUI to
// poll. It never touches disk.
type RingBuffer struct {
	mu     sync.Mutex
	buf    []Event
	cap    int
	next   int
	filled bool
}

// NewRingBuffer builds a RingBuffer holding at most capacity events.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &RingBuffer{buf: make([]Event, capacity), cap: capacity}
}

func (r *RingBuffer) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Detail = maskDetail(e.Detail)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

// Snapshot returns the retained events, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]Event, r.cap)
	copy(out, r.buf[r.next:])
	copy(out[r.cap-r.next:], r.buf[:r.next])
	return out
}

// Multi fans one event out to several sinks, e.g. LogSink plus a RingBuffer
// feeding the diagnose TUI.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

var sensitiveMarkers = []string{"authorization", "api-key", "x-api-key", "token", "bearer", "cookie"}

// maskDetail replaces the whole detail string with a fixed redaction marker
// when any part of it looks like it carries a credential, matching
// trafficdump's header-name matching but applied to a single free-form
// string instead of a request dump. Other strings are truncated to 500 bytes.
func maskDetail(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return "[redacted: contains credential-like content]"
		}
	}
	if len(s) > 500 {
		return s[:500] + "...[truncated]"
	}
	return s
}
