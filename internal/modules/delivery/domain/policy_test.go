package domain

import (
	"testing"
	"time"
)

func TestDelayIsExponentialAndCapped(t *testing.T) {
	t.Parallel()
	p := BackgroundPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, expected := range want {
		if got := p.Delay(attempt); got != expected {
			t.Fatalf("Delay(%d) = %s, want %s", attempt, got, expected)
		}
	}
	if got := p.Delay(500); got != p.CapDelay {
		t.Fatalf("huge attempt should cap, got %s", got)
	}
}

func TestDelayIsNonDecreasing(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: 300 * time.Millisecond, CapDelay: 7 * time.Second}
	prev := time.Duration(0)
	for attempt := 0; attempt < 64; attempt++ {
		d := p.Delay(attempt)
		if d < prev || d > p.CapDelay {
			t.Fatalf("attempt %d: delay %s after %s (cap %s)", attempt, d, prev, p.CapDelay)
		}
		prev = d
	}
}

func TestPresets(t *testing.T) {
	t.Parallel()
	if p, _ := PolicyByName("inline"); p.MaxAttempts != 3 {
		t.Fatalf("inline attempts = %d", p.MaxAttempts)
	}
	if p, _ := PolicyByName("background"); p.MaxAttempts != 5 {
		t.Fatalf("background attempts = %d", p.MaxAttempts)
	}
	if _, ok := PolicyByName("eventually"); ok {
		t.Fatalf("unknown preset accepted")
	}
}

func TestAckConfirms(t *testing.T) {
	t.Parallel()
	seq := 2
	other := 3
	chunk := Task{Kind: KindChunk, SessionID: "s1", Chunks: []Chunk{{SessionID: "s1", Sequence: 2}}}
	session := Task{Kind: KindSession, SessionID: "s1"}

	if !(Ack{SessionID: "s1", Sequence: &seq}).Confirms(chunk) {
		t.Fatalf("matching chunk ack rejected")
	}
	if (Ack{SessionID: "s1", Sequence: &other}).Confirms(chunk) {
		t.Fatalf("wrong sequence accepted")
	}
	if (Ack{SessionID: "s1"}).Confirms(chunk) {
		t.Fatalf("chunk ack without sequence accepted")
	}
	if !(Ack{SessionID: "s1", Status: "accepted"}).Confirms(session) {
		t.Fatalf("session ack rejected")
	}
	if (Ack{SessionID: "s2"}).Confirms(session) || (Ack{}).Confirms(session) {
		t.Fatalf("uncorrelated ack accepted")
	}
	if (Ack{SessionID: "s1", Status: "error"}).Confirms(session) {
		t.Fatalf("error status accepted")
	}
}
