package eventsink

import "testing"

func TestRingBufferSnapshotOrderBeforeWrap(t *testing.T) {
	r := NewRingBuffer(3)
	r.Emit(Event{Message: "a"})
	r.Emit(Event{Message: "b"})
	got := r.Snapshot()
	if len(got) != 2 || got[0].Message != "a" || got[1].Message != "b" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestRingBufferSnapshotOrderAfterWrap(t *testing.T) {
	r := NewRingBuffer(3)
	for _, m := range []string{"a", "b", "c", "d"} {
		r.Emit(Event{Message: m})
	}
	got := r.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	want := []string{"b", "c", "d"}
	for i, w := range want {
		if got[i].Message != w {
			t.Fatalf("index %d: expected %q, got %q", i, w, got[i].Message)
		}
	}
}

func TestRingBufferMasksSensitiveDetail(t *testing.T) {
	r := NewRingBuffer(2)
	r.Emit(Event{Detail: "Authorization: Bearer sk-secret"})
	got := r.Snapshot()
	if got[0].Detail != "[redacted: contains credential-like content]" {
		t.Fatalf("expected masked detail, got %q", got[0].Detail)
	}
}

func TestMultiFansOutToAllSinks(t *testing.T) {
	var a, b []Event
	sinkA := recordingSink{&a}
	sinkB := recordingSink{&b}
	m := Multi{sinkA, sinkB}
	m.Emit(Event{Message: "hi"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to receive the event, got a=%d b=%d", len(a), len(b))
	}
}

type recordingSink struct {
	events *[]Event
}

func (s recordingSink) Emit(e Event) {
	*s.events = append(*s.events, e)
}

func TestDiscardDropsEverything(t *testing.T) {
	Discard{}.Emit(Event{Message: "ignored"})
}
