// Package fec implements the §4.4 pairwise XOR forward error correction
// scheme: opportunistic recovery of at most one loss per adjacent packet
// pair, never a substitute for NACK-driven retransmission.
package fec

import (
	"github.com/relaycast/core/internal/wire"
)

// MinGroupSize and MaxGroupSize are the §4.4 group-size clamp bounds.
const (
	MinGroupSize = 2
	MaxGroupSize = 48
)

// Encoder produces repair packets for groups of outgoing VIDEO packet
// payloads. It is not safe for concurrent use by multiple goroutines
// encoding different groups at once; the sender's encode stage is
// single-threaded per §5.
type Encoder struct {
	groupID uint8
}

// NewEncoder returns an Encoder with its group identifier starting at zero.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// ClampGroupSize bounds n to [MinGroupSize, MaxGroupSize].
func ClampGroupSize(n int) int {
	if n < MinGroupSize {
		return MinGroupSize
	}
	if n > MaxGroupSize {
		return MaxGroupSize
	}
	return n
}

// ClampRatio bounds a redundancy ratio to [0.0, 1.0].
func ClampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// RedundancyCount computes R from a group of N packets and a requested
// ratio, capped at floor(N/2) (§4.4).
func RedundancyCount(n int, ratio float64) int {
	ratio = ClampRatio(ratio)
	r := int(float64(n) * ratio)
	max := n / 2
	if r > max {
		r = max
	}
	if r < 0 {
		r = 0
	}
	return r
}

// Encode produces r repair packets for a group of data packet payloads,
// with sequence numbers starting at firstSeq and incrementing per data
// packet (so the repair packets can name which originals they cover via
// their own sequence field). Repair packet i = data[2i] XOR data[2i+1],
// zero-padded to the longer operand's length; when r == 0, Encode returns
// nil.
func (e *Encoder) Encode(payloads [][]byte, firstSeq uint16, r int) [][]byte {
	if r <= 0 || len(payloads) < 2 {
		return nil
	}
	group := e.groupID
	e.groupID++

	out := make([][]byte, 0, r)
	for i := 0; i < r && 2*i+1 < len(payloads); i++ {
		a := payloads[2*i]
		b := payloads[2*i+1]
		repair := xorPad(a, b)

		h := wire.FECHeader{
			SequenceNumber: firstSeq + uint16(2*i),
			GroupID:        group,
			FragmentIndex:  uint8(i),
			FragmentTotal:  uint8(r),
		}
		out = append(out, wire.SerializeFEC(h, repair))
	}
	return out
}

// xorPad XORs a and b byte-by-byte, zero-padding the shorter operand to the
// length of the longer one.
func xorPad(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = av ^ bv
	}
	return out
}

// Recover attempts to reconstruct a missing payload given the repair
// packet's payload and the surviving payload from the other half of the
// pair. Since XOR is its own inverse, recovery uses the same operation as
// encoding.
func Recover(repairPayload, survivingPayload []byte) []byte {
	return xorPad(repairPayload, survivingPayload)
}
