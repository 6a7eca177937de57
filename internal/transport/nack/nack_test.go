package nack

import (
	"testing"
	"time"
)

func TestInOrderNoGaps(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(10)
	tr.OnPacketReceived(11)
	tr.OnPacketReceived(12)
	if tr.PendingCount() != 0 {
		t.Fatalf("expected no gaps, got %d", tr.PendingCount())
	}
}

func TestGapRecordedOnSkip(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(10)
	tr.OnPacketReceived(14) // skips 11,12,13
	if tr.PendingCount() != 3 {
		t.Fatalf("expected 3 pending gaps, got %d", tr.PendingCount())
	}
}

func TestGapFilledByLateArrival(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(10)
	tr.OnPacketReceived(12) // gap at 11
	if tr.PendingCount() != 1 {
		t.Fatalf("expected 1 gap, got %d", tr.PendingCount())
	}
	tr.OnPacketReceived(11) // late arrival fills the gap
	if tr.PendingCount() != 0 {
		t.Fatalf("expected gap cleared, got %d", tr.PendingCount())
	}
}

func TestDueRespectsThreshold(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(1)
	tr.OnPacketReceived(3) // gap at 2

	// Immediately after the gap opens, it shouldn't be due yet relative to
	// a non-trivial rtt+jitter threshold.
	due := tr.Due(20*time.Millisecond, 5*time.Millisecond)
	if len(due) != 0 {
		t.Fatalf("expected nothing due yet, got %v", due)
	}
}

func TestDueFiresAfterThreshold(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(1)
	tr.OnPacketReceived(3) // gap at 2, firstSeen = now

	time.Sleep(5 * time.Millisecond)
	due := tr.Due(0, 0)
	if len(due) != 1 || due[0] != 2 {
		t.Fatalf("expected [2] due, got %v", due)
	}
}

func TestAttemptsCapAndAbandon(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(1)
	tr.OnPacketReceived(3)

	for i := 0; i < maxAttempts; i++ {
		time.Sleep(extraDelay + time.Millisecond)
		tr.Due(0, 0)
	}
	if tr.PendingCount() != 1 {
		t.Fatalf("gap should still be pending (aged out, not yet abandoned): %d", tr.PendingCount())
	}
	// Further Due calls shouldn't re-request once attempts are exhausted.
	due := tr.Due(0, 0)
	if len(due) != 0 {
		t.Fatalf("expected no further requests after exhausting attempts, got %v", due)
	}
}

func TestFrameResolvedClearsGaps(t *testing.T) {
	tr := New()
	tr.OnPacketReceived(1)
	tr.OnPacketReceived(4) // gaps at 2,3
	if tr.PendingCount() != 2 {
		t.Fatalf("expected 2 gaps, got %d", tr.PendingCount())
	}
	tr.FrameResolved([]uint16{2, 3})
	if tr.PendingCount() != 0 {
		t.Fatalf("expected gaps cleared, got %d", tr.PendingCount())
	}
}
