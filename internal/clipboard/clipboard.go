// Package clipboard implements the §3 CLIPBOARD/CLIP_ACK packet protocol:
// reliable delivery of clipboard text over an otherwise-unreliable UDP
// flow, via explicit sequence numbers, acknowledgement, and retry with
// backoff. Clipboard text synchronization itself (watching the OS
// clipboard, applying received text to it) is an external collaborator's
// job; this package owns only the wire-level reliability contract.
package clipboard

import (
	"errors"
	"sync"
	"time"

	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/wire"
)

var log = logging.L("clipboard")

// ErrTextTooLarge is returned by Send when text exceeds the §3 65536-byte
// CLIPBOARD payload cap.
var ErrTextTooLarge = errors.New("clipboard: text exceeds 65536 bytes")

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 3 * time.Second
	backoffFactor  = 2.0
	maxAttempts    = 5
)

// Sender abstracts the encrypted datagram send the Syncer uses to transmit
// CLIPBOARD and CLIP_ACK packets.
type Sender interface {
	Send(payload []byte) error
}

type pendingSend struct {
	header    wire.ClipboardHeader
	text      []byte
	attempts  int
	nextRetry time.Time
	backoff   time.Duration
}

// Syncer tracks one direction's in-flight CLIPBOARD sends awaiting
// CLIP_ACK, and acknowledges CLIPBOARD packets it receives. A single
// Syncer instance handles both directions for one peer since the wire
// header's Direction field disambiguates which way a given packet travels.
type Syncer struct {
	mu      sync.Mutex
	nextSeq uint16
	pending map[uint16]*pendingSend

	direction wire.ClipboardDirection

	onApply func(text []byte)
}

// Config configures a Syncer for one side of the connection.
type Config struct {
	// Direction is the direction this Syncer originates sends in (e.g. a
	// host Syncer sends HostToViewer and acks ViewerToHost).
	Direction wire.ClipboardDirection
	// OnApply is invoked with the text payload of any received CLIPBOARD
	// packet, before the CLIP_ACK is sent; nil means received text is dropped
	// (still acked, since the protocol must not stall the peer's retry
	// loop on a side that has no clipboard to write to).
	OnApply func(text []byte)
}

// New returns an empty Syncer.
func New(cfg Config) *Syncer {
	return &Syncer{
		pending:   make(map[uint16]*pendingSend),
		direction: cfg.Direction,
		onApply:   cfg.OnApply,
	}
}

// Send queues text for reliable delivery, serializes and transmits the
// first CLIPBOARD attempt immediately, and registers it for retry until
// acked or maxAttempts is exhausted. text longer than
// wire.MaxClipboardPayload is rejected.
func (s *Syncer) Send(text []byte, send Sender) error {
	if len(text) > wire.MaxClipboardPayload {
		return ErrTextTooLarge
	}

	s.mu.Lock()
	seq := s.nextSeq
	s.nextSeq++
	h := wire.ClipboardHeader{
		Direction: s.direction,
		Sequence:  seq,
		Format:    wire.ClipboardFormatTextUTF8,
		Length:    uint32(len(text)),
	}
	s.pending[seq] = &pendingSend{
		header:    h,
		text:      text,
		attempts:  1,
		nextRetry: time.Now().Add(initialBackoff),
		backoff:   initialBackoff,
	}
	s.mu.Unlock()

	packet, err := wire.SerializeClipboard(h, text)
	if err != nil {
		return err
	}
	return send.Send(packet)
}

// OnClipboard handles a received CLIPBOARD packet: applies it (if
// OnApply is set) and replies with CLIP_ACK unconditionally, including for
// duplicates, so a peer that missed our first ack gets one on retry.
func (s *Syncer) OnClipboard(h wire.ClipboardHeader, text []byte, send Sender) {
	if s.onApply != nil {
		s.onApply(text)
	}
	ack := wire.SerializeClipAck(wire.ClipAck{Sequence: h.Sequence})
	if err := send.Send(ack); err != nil {
		log.Debug("failed to send clip ack", "sequence", h.Sequence, "error", err)
	}
}

// OnClipAck clears the acknowledged send from the retry set.
func (s *Syncer) OnClipAck(a wire.ClipAck) {
	s.mu.Lock()
	delete(s.pending, a.Sequence)
	s.mu.Unlock()
}

// Tick resends any pending send whose backoff has elapsed and has not yet
// exhausted maxAttempts, dropping ones that have. Callers drive this on
// their own cadence; the protocol does not mandate a specific tick rate.
func (s *Syncer) Tick(now time.Time, send Sender) {
	s.mu.Lock()
	due := make([]*pendingSend, 0, len(s.pending))
	for seq, p := range s.pending {
		if now.Before(p.nextRetry) {
			continue
		}
		if p.attempts >= maxAttempts {
			log.Debug("clipboard send abandoned after max attempts", "sequence", seq, "attempts", p.attempts)
			delete(s.pending, seq)
			continue
		}
		p.attempts++
		p.backoff = nextBackoff(p.backoff)
		p.nextRetry = now.Add(p.backoff)
		due = append(due, p)
	}
	s.mu.Unlock()

	for _, p := range due {
		packet, err := wire.SerializeClipboard(p.header, p.text)
		if err != nil {
			continue
		}
		if err := send.Send(packet); err != nil {
			log.Debug("clipboard retry send failed", "sequence", p.header.Sequence, "error", err)
		}
	}
}

// PendingCount reports the number of sends still awaiting acknowledgement,
// for metrics/tests.
func (s *Syncer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
