// Package jitter implements the §4.6 video jitter buffer: fragment
// reassembly across out-of-order, duplicated and late VIDEO/FEC-repaired
// packets, emitting complete frames in non-decreasing timestamp order with
// depth-based pacing. Generalized from a per-sender audio jitter ring (the
// fragment dimension here is within one frame, not across senders) to
// reassemble multi-packet video frames instead.
package jitter

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/relaycast/core/internal/wire"
)

// Depth presets from §4.6's gaming-mode table.
const (
	DepthCompetitive = 1 * time.Millisecond
	DepthBalanced    = 4 * time.Millisecond
	DepthCinematic   = 8 * time.Millisecond
)

// PushError values. No other error is ever returned from Push.
var (
	ErrStaleFrame       = errors.New("jitter: frame older than last popped frame")
	ErrFragmentMismatch = errors.New("jitter: conflicting payload for already-filled fragment")
)

type frameEntry struct {
	total       uint8
	have        map[uint8][]byte
	arrivalTime time.Time
	timestampUs uint32
	keyframe    bool
	firstHeader wire.VideoHeader
	haveFirst   bool
}

func (e *frameEntry) complete() bool {
	if e.total == 0 {
		return false
	}
	return len(e.have) == int(e.total)
}

// Buffer is the jitter buffer for one stream. Safe for concurrent Push/Pop
// from separate receive and decode goroutines (§4.9: Receive feeds it,
// Decode polls it).
type Buffer struct {
	mu sync.Mutex

	targetDepth time.Duration
	frames      map[uint16]*frameEntry

	havePopped bool
	lastPopped uint16

	haveReference     bool
	firstTimestampUs  uint32
	firstArrivalTime  time.Time

	needsRefresh bool
}

// New returns an empty Buffer with the given target depth.
func New(targetDepth time.Duration) *Buffer {
	return &Buffer{
		targetDepth: targetDepth,
		frames:      make(map[uint16]*frameEntry),
	}
}

// SetTargetDepth updates the pacing depth (e.g. on a gaming-mode change).
func (b *Buffer) SetTargetDepth(d time.Duration) {
	b.mu.Lock()
	b.targetDepth = d
	b.mu.Unlock()
}

// Push inserts one received fragment. now is the wall-clock arrival time,
// passed in rather than read internally so tests are deterministic.
func (b *Buffer) Push(h wire.VideoHeader, payload []byte, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// F1 / J2: stale-frame rejection.
	if b.havePopped && wire.SeqLessOrEqual(h.FrameNumber, b.lastPopped) {
		return ErrStaleFrame
	}

	// F2: keyframe reset abandons incomplete frames strictly between the
	// last popped frame and this keyframe.
	if h.Keyframe {
		for fn, e := range b.frames {
			if wire.SeqLess(b.lastPoppedOrZero(), fn) && wire.SeqLess(fn, h.FrameNumber) && !e.complete() {
				delete(b.frames, fn)
			}
		}
		b.needsRefresh = true
	}

	entry, exists := b.frames[h.FrameNumber]
	if !exists {
		entry = &frameEntry{
			total:       h.FragmentTotal,
			have:        make(map[uint8][]byte),
			arrivalTime: now,
			timestampUs: h.TimestampUs,
			keyframe:    h.Keyframe,
		}
		b.frames[h.FrameNumber] = entry

		if !b.haveReference {
			b.haveReference = true
			b.firstTimestampUs = h.TimestampUs
			b.firstArrivalTime = now
		}
	}

	if existing, ok := entry.have[h.FragmentIndex]; ok {
		if !bytes.Equal(existing, payload) {
			delete(b.frames, h.FrameNumber)
			return ErrFragmentMismatch
		}
		return nil // exact duplicate, ignored
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	entry.have[h.FragmentIndex] = cp

	if h.FragmentIndex == 0 || !entry.haveFirst {
		entry.firstHeader = h
		entry.haveFirst = true
	}
	return nil
}

func (b *Buffer) lastPoppedOrZero() uint16 {
	if !b.havePopped {
		return 0
	}
	return b.lastPopped
}

// Popped is one frame emitted by Pop.
type Popped struct {
	Header  wire.VideoHeader
	Payload []byte
	Partial bool // true if emitted before all fragments arrived
}

// Pop returns the next ready frame, or false if nothing is ready yet. A
// frame is ready when it is complete (J1) and its pacing deadline has
// passed, or when it has been waiting since arrival_time+target_depth and
// is emitted incomplete (wait-deadline policy). Frames that fail the J3
// continuity check are dropped silently (logging is the caller's job) and
// Pop continues scanning for the next candidate.
func (b *Buffer) Pop(now time.Time) (Popped, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		fn, entry, ready := b.findEarliestReady(now)
		if !ready {
			return Popped{}, false
		}

		if !entry.keyframe {
			expectedPrev := fn - 1
			if !b.havePopped || b.lastPopped != expectedPrev {
				// J3: non-keyframe without an emitted predecessor is
				// dropped, not emitted; lastPopped does not advance, so
				// the cascade continues until the next keyframe.
				delete(b.frames, fn)
				continue
			}
		}

		payload := concatFragments(entry)
		result := Popped{Header: entry.firstHeader, Payload: payload, Partial: !entry.complete()}
		delete(b.frames, fn)
		b.lastPopped = fn
		b.havePopped = true
		return result, true
	}
}

// findEarliestReady scans pending frames for the one with the smallest
// timestamp that is either complete-and-paced or past its wait deadline.
func (b *Buffer) findEarliestReady(now time.Time) (uint16, *frameEntry, bool) {
	var (
		bestFn    uint16
		best      *frameEntry
		haveBest  bool
	)
	for fn, e := range b.frames {
		if !b.frameEligible(e, now) {
			continue
		}
		if !haveBest || tsLess(e.timestampUs, best.timestampUs) {
			bestFn, best, haveBest = fn, e, true
		}
	}
	return bestFn, best, haveBest
}

func (b *Buffer) frameEligible(e *frameEntry, now time.Time) bool {
	if e.complete() {
		return !now.Before(b.pacingDeadline(e))
	}
	// Wait-deadline policy: emit incomplete once arrival_time+target_depth
	// has passed.
	return !now.Before(e.arrivalTime.Add(b.targetDepth))
}

// pacingDeadline is the wall-clock instant at which a complete frame
// becomes eligible for pop, derived from the stream's reference offset
// (§4.6: "reference_offset initialized on first packet to now -
// first_timestamp_us").
func (b *Buffer) pacingDeadline(e *frameEntry) time.Time {
	deltaUs := int64(e.timestampUs) - int64(b.firstTimestampUs)
	streamTime := b.firstArrivalTime.Add(time.Duration(deltaUs) * time.Microsecond)
	return streamTime.Add(b.targetDepth)
}

func tsLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func concatFragments(e *frameEntry) []byte {
	var buf bytes.Buffer
	for i := uint8(0); i < e.total; i++ {
		if frag, ok := e.have[i]; ok {
			buf.Write(frag)
		}
	}
	return buf.Bytes()
}

// NeedsRefresh reports whether a keyframe reset (F2) occurred since the
// last call, consuming the flag. The decode stage uses this to discard any
// in-flight decoder reference state.
func (b *Buffer) NeedsRefresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.needsRefresh
	b.needsRefresh = false
	return v
}

// PendingFrames returns the number of frames currently buffered, for
// metrics.
func (b *Buffer) PendingFrames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}
