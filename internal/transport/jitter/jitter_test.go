package jitter

import (
	"testing"
	"time"

	"github.com/relaycast/core/internal/wire"
)

func mkHeader(frameNum uint16, ts uint32, idx, total uint8, keyframe bool) wire.VideoHeader {
	return wire.VideoHeader{
		Version:        1,
		Keyframe:       keyframe,
		Codec:          wire.CodecH264,
		FrameNumber:    frameNum,
		TimestampUs:    ts,
		FragmentIndex:  idx,
		FragmentTotal:  total,
		SequenceNumber: frameNum*10 + uint16(idx),
	}
}

func TestInOrderSingleFragmentFrames(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()

	for i := uint16(0); i < 3; i++ {
		h := mkHeader(i, uint32(i)*16000, 0, 1, i == 0)
		if err := b.Push(h, []byte{byte(i)}, base); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	later := base.Add(100 * time.Millisecond)
	for i := uint16(0); i < 3; i++ {
		p, ok := b.Pop(later)
		if !ok {
			t.Fatalf("expected frame %d ready", i)
		}
		if p.Header.FrameNumber != i {
			t.Fatalf("expected frame %d, got %d", i, p.Header.FrameNumber)
		}
		if p.Payload[0] != byte(i) {
			t.Fatalf("wrong payload for frame %d", i)
		}
	}
	if _, ok := b.Pop(later); ok {
		t.Fatal("expected no more frames ready")
	}
}

func TestOutOfOrderFragmentReassembly(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()

	h := mkHeader(0, 0, 1, 2, true)
	if err := b.Push(h, []byte("second"), base); err != nil {
		t.Fatal(err)
	}
	h0 := mkHeader(0, 0, 0, 2, true)
	if err := b.Push(h0, []byte("first-"), base); err != nil {
		t.Fatal(err)
	}

	p, ok := b.Pop(base.Add(100 * time.Millisecond))
	if !ok {
		t.Fatal("expected frame ready")
	}
	if string(p.Payload) != "first-second" {
		t.Fatalf("got %q", p.Payload)
	}
	if p.Partial {
		t.Fatal("frame should be complete, not partial")
	}
}

func TestStaleFrameRejected(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()

	// Pop frame 0 first.
	if err := b.Push(mkHeader(0, 0, 0, 1, true), []byte("a"), base); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Pop(base.Add(100 * time.Millisecond)); !ok {
		t.Fatal("expected frame 0 to pop")
	}

	// Now push a frame "older" than what was popped.
	err := b.Push(mkHeader(0, 0, 0, 1, false), []byte("stale"), base)
	if err != ErrStaleFrame {
		t.Fatalf("expected ErrStaleFrame, got %v", err)
	}
}

func TestDuplicateFragmentIgnored(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()
	h := mkHeader(0, 0, 0, 2, true)
	if err := b.Push(h, []byte("x"), base); err != nil {
		t.Fatal(err)
	}
	if err := b.Push(h, []byte("x"), base); err != nil {
		t.Fatalf("exact duplicate should be ignored without error: %v", err)
	}
}

func TestFragmentMismatchDiscardsFrame(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()
	h := mkHeader(0, 0, 0, 2, true)
	if err := b.Push(h, []byte("x"), base); err != nil {
		t.Fatal(err)
	}
	err := b.Push(h, []byte("y"), base)
	if err != ErrFragmentMismatch {
		t.Fatalf("expected ErrFragmentMismatch, got %v", err)
	}
	if b.PendingFrames() != 0 {
		t.Fatal("expected frame discarded after mismatch")
	}
}

func TestNonKeyframeWithoutPredecessorDropped(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()

	// Frame 0 is a non-keyframe with no predecessor ever emitted: per J3
	// it must be dropped, not emitted.
	if err := b.Push(mkHeader(0, 0, 0, 1, false), []byte("p0"), base); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Pop(base.Add(100 * time.Millisecond)); ok {
		t.Fatal("non-keyframe frame 0 should never be emitted without a predecessor")
	}
	if b.PendingFrames() != 0 {
		t.Fatal("expected dropped frame removed from buffer")
	}
}

func TestKeyframeResetAbandonsIncompleteFrames(t *testing.T) {
	b := New(1 * time.Millisecond)
	base := time.Now()

	// Frame 1: incomplete (1 of 2 fragments).
	if err := b.Push(mkHeader(1, 16000, 0, 2, false), []byte("p"), base); err != nil {
		t.Fatal(err)
	}
	// Frame 3 arrives as a keyframe: should abandon incomplete frame 1.
	if err := b.Push(mkHeader(3, 48000, 0, 1, true), []byte("kf"), base); err != nil {
		t.Fatal(err)
	}
	if !b.NeedsRefresh() {
		t.Fatal("expected keyframe reset to set needsRefresh")
	}

	later := base.Add(100 * time.Millisecond)
	p, ok := b.Pop(later)
	if !ok {
		t.Fatal("expected keyframe to be ready")
	}
	if p.Header.FrameNumber != 3 {
		t.Fatalf("expected frame 3 (keyframe bypasses continuity), got %d", p.Header.FrameNumber)
	}
	if _, ok := b.Pop(later); ok {
		t.Fatal("frame 1 should have been abandoned by the keyframe reset")
	}
}

func TestWaitDeadlineEmitsPartialFrame(t *testing.T) {
	b := New(5 * time.Millisecond)
	base := time.Now()

	// Keyframe with only 1 of 2 fragments.
	if err := b.Push(mkHeader(0, 0, 0, 2, true), []byte("only-frag"), base); err != nil {
		t.Fatal(err)
	}

	// Before the wait deadline, nothing should be ready.
	if _, ok := b.Pop(base.Add(1 * time.Millisecond)); ok {
		t.Fatal("expected no frame ready before wait deadline")
	}

	p, ok := b.Pop(base.Add(10 * time.Millisecond))
	if !ok {
		t.Fatal("expected partial frame emitted past wait deadline")
	}
	if !p.Partial {
		t.Fatal("expected frame marked partial")
	}
}
