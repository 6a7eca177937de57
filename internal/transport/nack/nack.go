// Package nack implements the §4.5 receiver-side NACK emitter: tracking of
// recently-observed gaps in the VIDEO/FEC sequence space, with a bounded
// retry count, surfaced to the QoS reporter for piggybacking on outgoing
// QOS_FEEDBACK packets. A gap past its threshold is re-requested on every
// Due call until its attempts run out; there is no growing delay between
// attempts.
package nack

import (
	"sync"
	"time"

	"github.com/relaycast/core/internal/wire"
)

// maxAttempts and abandonAfter are the §4.5 step-3 removal thresholds.
const (
	maxAttempts  = 3
	abandonAfter = 50 * time.Millisecond
	tickInterval = 5 * time.Millisecond
	// extraDelay is the §4.5 "+2ms" margin added to rtt+jitter before a gap
	// becomes eligible for its first NACK request.
	extraDelay = 2 * time.Millisecond
)

type gap struct {
	firstSeen     time.Time
	attempts      int
	lastRequested time.Time
}

// Tracker maintains the pending-gap set for one receive stream. It is
// driven by two independent callers — the receive stage feeding
// OnPacketReceived and a background ticker calling Due — so all mutable
// state is guarded by a mutex.
type Tracker struct {
	mu       sync.Mutex
	expected uint16
	primed   bool
	pending  map[uint16]*gap
	dropped  uint64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{pending: make(map[uint16]*gap)}
}

// OnPacketReceived advances the tracker's cursor and records any gap opened
// by an out-of-order arrival (§4.5 step 1).
func (t *Tracker) OnPacketReceived(seq uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.primed {
		t.expected = seq + 1
		t.primed = true
		return
	}

	if seq == t.expected {
		t.expected++
		return
	}
	if wire.SeqLess(seq, t.expected) {
		// Late arrival for an already-advanced or already-requested
		// sequence: clear it from pending if present, don't rewind.
		delete(t.pending, seq)
		return
	}

	now := time.Now()
	for s := t.expected; wire.SeqLess(s, seq); s++ {
		if _, exists := t.pending[s]; !exists {
			t.pending[s] = &gap{firstSeen: now}
		}
	}
	t.expected = seq + 1
	delete(t.pending, seq)
}

// FrameResolved removes every pending gap covered by a frame that has been
// popped or declared lost by the jitter buffer (§4.5 step 3, "the frame it
// belongs to has been popped or declared lost").
func (t *Tracker) FrameResolved(seqs []uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range seqs {
		delete(t.pending, s)
	}
}

// Due inspects pending gaps and returns those eligible for a NACK request
// right now, incrementing their attempt counters and stamping
// last_requested (§4.5 step 2). rttEstimate and jitterEstimate are the
// current smoothed RTT/jitter from the QoS reporter. Gaps that have
// exhausted their attempts and aged past abandonAfter since their last
// request are dropped instead of re-requested (§4.5 step 3).
func (t *Tracker) Due(rttEstimate, jitterEstimate time.Duration) []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	threshold := rttEstimate + jitterEstimate + extraDelay

	var due []uint16
	for seq, g := range t.pending {
		if g.attempts >= maxAttempts {
			if !g.lastRequested.IsZero() && now.Sub(g.lastRequested) > abandonAfter {
				delete(t.pending, seq)
				t.dropped++
			}
			continue
		}
		if now.Sub(g.firstSeen) < threshold {
			continue
		}
		g.attempts++
		g.lastRequested = now
		due = append(due, seq)
	}
	return due
}

// PendingCount reports the number of gaps currently tracked, for metrics.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// TickInterval is the §4.5 background ticker cadence (~5ms).
func TickInterval() time.Duration { return tickInterval }

// DroppedCount returns the cumulative number of gaps abandoned after
// exhausting their retry attempts — the QoS reporter's "packets_lost" input
// (§4.7: "via the NACK emitter's final-drop count").
func (t *Tracker) DroppedCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
