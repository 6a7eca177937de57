package clipboard

import (
	"sync"
	"testing"
	"time"

	"github.com/relaycast/core/internal/wire"
)

type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
}

func (r *recordingSender) Send(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, append([]byte(nil), payload...))
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func TestSendTransmitsImmediatelyAndTracksPending(t *testing.T) {
	s := New(Config{Direction: wire.ClipboardHostToViewer})
	sender := &recordingSender{}

	if err := s.Send([]byte("hello"), sender); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if sender.count() != 1 {
		t.Fatalf("expected 1 packet sent, got %d", sender.count())
	}
	if s.PendingCount() != 1 {
		t.Fatalf("expected 1 pending ack, got %d", s.PendingCount())
	}

	h, payload, err := wire.DeserializeClipboard(sender.last())
	if err != nil {
		t.Fatalf("DeserializeClipboard: %v", err)
	}
	if string(payload) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", payload)
	}
	if h.Direction != wire.ClipboardHostToViewer {
		t.Fatalf("expected direction HostToViewer, got %v", h.Direction)
	}
}

func TestSendRejectsOversizedText(t *testing.T) {
	s := New(Config{})
	oversized := make([]byte, wire.MaxClipboardPayload+1)
	if err := s.Send(oversized, &recordingSender{}); err != ErrTextTooLarge {
		t.Fatalf("expected ErrTextTooLarge, got %v", err)
	}
}

func TestOnClipAckClearsPending(t *testing.T) {
	s := New(Config{Direction: wire.ClipboardViewerToHost})
	sender := &recordingSender{}

	_ = s.Send([]byte("abc"), sender)
	h, _, _ := wire.DeserializeClipboard(sender.last())

	s.OnClipAck(wire.ClipAck{Sequence: h.Sequence})

	if s.PendingCount() != 0 {
		t.Fatalf("expected 0 pending after ack, got %d", s.PendingCount())
	}
}

func TestTickResendsAfterBackoffElapses(t *testing.T) {
	s := New(Config{Direction: wire.ClipboardHostToViewer})
	sender := &recordingSender{}
	_ = s.Send([]byte("retry-me"), sender)

	if sender.count() != 1 {
		t.Fatalf("expected 1 initial send, got %d", sender.count())
	}

	// Before the backoff elapses, Tick is a no-op.
	s.Tick(time.Now(), sender)
	if sender.count() != 1 {
		t.Fatalf("expected no resend before backoff elapses, got %d sends", sender.count())
	}

	// After the backoff window, Tick resends.
	future := time.Now().Add(initialBackoff + time.Millisecond)
	s.Tick(future, sender)
	if sender.count() != 2 {
		t.Fatalf("expected a resend after backoff elapsed, got %d sends", sender.count())
	}
	if s.PendingCount() != 1 {
		t.Fatalf("expected send to remain pending after one retry, got %d", s.PendingCount())
	}
}

func TestTickAbandonsAfterMaxAttempts(t *testing.T) {
	s := New(Config{Direction: wire.ClipboardHostToViewer})
	sender := &recordingSender{}
	_ = s.Send([]byte("doomed"), sender)

	now := time.Now()
	for i := 0; i < maxAttempts+2; i++ {
		now = now.Add(maxBackoff + time.Millisecond)
		s.Tick(now, sender)
	}

	if s.PendingCount() != 0 {
		t.Fatalf("expected send to be abandoned after max attempts, got %d pending", s.PendingCount())
	}
}

func TestOnClipboardAppliesAndAcks(t *testing.T) {
	var applied []byte
	s := New(Config{
		Direction: wire.ClipboardHostToViewer,
		OnApply:   func(text []byte) { applied = append([]byte(nil), text...) },
	})
	sender := &recordingSender{}

	h := wire.ClipboardHeader{Direction: wire.ClipboardViewerToHost, Sequence: 42, Format: wire.ClipboardFormatTextUTF8}
	s.OnClipboard(h, []byte("incoming text"), sender)

	if string(applied) != "incoming text" {
		t.Fatalf("expected OnApply to receive %q, got %q", "incoming text", applied)
	}
	if sender.count() != 1 {
		t.Fatalf("expected 1 ack sent, got %d", sender.count())
	}

	ack, err := wire.DeserializeClipAck(sender.last())
	if err != nil {
		t.Fatalf("DeserializeClipAck: %v", err)
	}
	if ack.Sequence != 42 {
		t.Fatalf("expected ack sequence 42, got %d", ack.Sequence)
	}
}

func TestOnClipboardAcksWithNilOnApply(t *testing.T) {
	s := New(Config{Direction: wire.ClipboardHostToViewer})
	sender := &recordingSender{}

	h := wire.ClipboardHeader{Direction: wire.ClipboardViewerToHost, Sequence: 7}
	s.OnClipboard(h, []byte("ignored"), sender)

	if sender.count() != 1 {
		t.Fatalf("expected an ack even with no OnApply hook, got %d sends", sender.count())
	}
}
